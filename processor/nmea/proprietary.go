package nmea

import (
	"fmt"
	"strconv"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// DecodeProprietary decodes the external tracker sentence
//
//	$PTRK,<id>,<lat>,<lon>,<sog>,<cog>,<hdg>,<name>*hh
//
// with decimal degree coordinates. Speed, course, heading and name may be
// empty.
func DecodeProprietary(line string) (processor.Result, error) {
	fields, err := splitFields(line)
	if err != nil {
		return processor.Result{}, err
	}
	if field(fields, 0) != "PTRK" {
		return processor.Result{}, unsupported("DecodeProprietary", field(fields, 0))
	}

	id, err := strconv.ParseInt(field(fields, 1), 10, 64)
	if err != nil || id <= 0 {
		return processor.Result{}, errors.WrapInvalid(fmt.Errorf("%w: id %q", errors.ErrParsingFailed, field(fields, 1)),
			"nmea", "DecodeProprietary", "parse id")
	}

	rec := contact.Record{ID: id, Kind: contact.KindReport, Label: field(fields, 7)}

	if rec.Position.Lat, err = requireFloat(fields, 2, "latitude"); err != nil {
		return processor.Result{}, err
	}
	if rec.Position.Lon, err = requireFloat(fields, 3, "longitude"); err != nil {
		return processor.Result{}, err
	}
	if !rec.Position.Valid() {
		return processor.Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: position %v out of range", errors.ErrParsingFailed, rec.Position),
			"nmea", "DecodeProprietary", "check position")
	}

	if rec.SOG, _, err = floatField(fields, 4, "sog"); err != nil {
		return processor.Result{}, err
	}
	if rec.COG, _, err = floatField(fields, 5, "cog"); err != nil {
		return processor.Result{}, err
	}
	if rec.Heading, rec.HasHeading, err = floatField(fields, 6, "heading"); err != nil {
		return processor.Result{}, err
	}

	return processor.Result{Records: []contact.Record{rec}}, nil
}
