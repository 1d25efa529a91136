package nmea

import (
	"fmt"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
	"github.com/c360/seatrack/processor/sentence"
)

// DecodeOwnPosition decodes a GGA, RMC or GLL fix of the local platform.
// Sentences flagged as having no fix decode to an empty result.
func DecodeOwnPosition(line string) (processor.Result, error) {
	s, err := parse(line)
	if err != nil {
		return processor.Result{}, err
	}

	upd := &processor.OwnShipUpdate{}
	switch m := s.(type) {
	case gonmea.GGA:
		if m.FixQuality == "" || m.FixQuality == "0" {
			return processor.Result{}, nil
		}
		upd.Position = &contact.Position{Lat: m.Latitude, Lon: m.Longitude}
	case gonmea.RMC:
		if m.Validity != "A" {
			return processor.Result{}, nil
		}
		upd.Position = &contact.Position{Lat: m.Latitude, Lon: m.Longitude}
		upd.Velocity = &processor.Velocity{SOG: m.Speed, COG: m.Course}
	case gonmea.GLL:
		if m.Validity != "A" {
			return processor.Result{}, nil
		}
		upd.Position = &contact.Position{Lat: m.Latitude, Lon: m.Longitude}
	default:
		return processor.Result{}, unsupported("DecodeOwnPosition", s.DataType())
	}

	if !upd.Position.Valid() {
		return processor.Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: position %v out of range", errors.ErrParsingFailed, *upd.Position),
			"nmea", "DecodeOwnPosition", "check position")
	}
	return processor.Result{OwnShip: upd}, nil
}

// DecodeOwnHeading decodes HDT and HDG headings and VTG velocity of the
// local platform.
func DecodeOwnHeading(line string) (processor.Result, error) {
	tag := sentenceID(line)
	if tag == "HDG" {
		return decodeHDG(line)
	}

	s, err := parse(line)
	if err != nil {
		return processor.Result{}, err
	}

	upd := &processor.OwnShipUpdate{}
	switch m := s.(type) {
	case gonmea.HDT:
		heading := m.Heading
		upd.Heading = &heading
	case gonmea.VTG:
		upd.Velocity = &processor.Velocity{SOG: m.GroundSpeedKnots, COG: m.TrueTrack}
	default:
		return processor.Result{}, unsupported("DecodeOwnHeading", s.DataType())
	}
	return processor.Result{OwnShip: upd}, nil
}

// decodeHDG corrects the magnetic heading by deviation and variation when
// they are reported.
func decodeHDG(line string) (processor.Result, error) {
	fields, err := splitFields(line)
	if err != nil {
		return processor.Result{}, err
	}

	heading, err := requireFloat(fields, 1, "heading")
	if err != nil {
		return processor.Result{}, err
	}
	for _, corr := range [][2]int{{2, 3}, {4, 5}} {
		v, ok, err := floatField(fields, corr[0], "correction")
		if err != nil {
			return processor.Result{}, err
		}
		if !ok {
			continue
		}
		if field(fields, corr[1]) == "W" {
			v = -v
		}
		heading += v
	}

	return processor.Result{OwnShip: &processor.OwnShipUpdate{Heading: &heading}}, nil
}

// sentenceID returns the three letter sentence id of a talker sentence
// whatever the talker length.
func sentenceID(line string) string {
	return sentence.Classify(line).Sentence
}

func unsupported(method, dataType string) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrUnsupportedMessage, dataType),
		"nmea", method, "dispatch sentence")
}
