package nmea

import (
	"fmt"
	"strconv"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// Distance and speed units used by TTM.
var unitToNM = map[string]float64{
	"N": 1,
	"":  1,
	"K": 1 / 1.852,
	"S": 0.868976,
}

// DecodeRadarTarget decodes TTM (bearing and range from own ship) and TLL
// (absolute position) radar targets. Lost targets decode to an empty result.
func DecodeRadarTarget(line string) (processor.Result, error) {
	fields, err := splitFields(line)
	if err != nil {
		return processor.Result{}, err
	}

	switch sentenceID(line) {
	case "TTM":
		return decodeTTM(fields)
	case "TLL":
		return decodeTLL(fields)
	default:
		return processor.Result{}, unsupported("DecodeRadarTarget", sentenceID(line))
	}
}

// $--TTM,nn,dist,brg,T|R,spd,crs,T|R,cpa,tcpa,unit,name,status,ref,time,acq
func decodeTTM(fields []string) (processor.Result, error) {
	id, err := radarID(fields)
	if err != nil {
		return processor.Result{}, err
	}
	if field(fields, 12) == "L" {
		return processor.Result{}, nil
	}

	scale, ok := unitToNM[field(fields, 10)]
	if !ok {
		return processor.Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: unit %q", errors.ErrParsingFailed, field(fields, 10)),
			"nmea", "decodeTTM", "read units")
	}

	dist, err := requireFloat(fields, 2, "distance")
	if err != nil {
		return processor.Result{}, err
	}
	bearing, err := requireFloat(fields, 3, "bearing")
	if err != nil {
		return processor.Result{}, err
	}

	records := []contact.Record{{
		ID:              id,
		Kind:            contact.KindBearingRange,
		BearingDeg:      bearing,
		RangeNM:         dist * scale,
		RelativeBearing: field(fields, 4) == "R",
		Label:           field(fields, 11),
	}}

	speed, hasSpeed, err := floatField(fields, 5, "speed")
	if err != nil {
		return processor.Result{}, err
	}
	course, hasCourse, err := floatField(fields, 6, "course")
	if err != nil {
		return processor.Result{}, err
	}
	// Relative course cannot be resolved without own course; skip it.
	if hasSpeed && hasCourse && field(fields, 7) != "R" {
		records = append(records, contact.Record{
			ID:   id,
			Kind: contact.KindVelocity,
			SOG:  speed * scale,
			COG:  course,
		})
	}

	return processor.Result{Records: records}, nil
}

// $--TLL,nn,lat,N,lon,E,name,time,status,ref
func decodeTLL(fields []string) (processor.Result, error) {
	id, err := radarID(fields)
	if err != nil {
		return processor.Result{}, err
	}
	if field(fields, 8) == "L" {
		return processor.Result{}, nil
	}

	lat, err := coordinate(field(fields, 2), field(fields, 3), 90)
	if err != nil {
		return processor.Result{}, err
	}
	lon, err := coordinate(field(fields, 4), field(fields, 5), 180)
	if err != nil {
		return processor.Result{}, err
	}

	return processor.Result{Records: []contact.Record{{
		ID:       id,
		Kind:     contact.KindPosition,
		Position: contact.Position{Lat: lat, Lon: lon},
		Label:    field(fields, 6),
	}}}, nil
}

func radarID(fields []string) (int64, error) {
	n, err := strconv.ParseInt(field(fields, 1), 10, 64)
	if err != nil || n < 0 || n >= contact.RadarIDBase {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: target number %q", errors.ErrParsingFailed, field(fields, 1)),
			"nmea", "radarID", "parse target number")
	}
	return contact.RadarIDBase + n, nil
}
