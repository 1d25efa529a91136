package ais

import (
	"fmt"
	"math"
	"strings"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// Field sentinels meaning "not available".
const (
	lonUnavailable     = 181 * 600000
	latUnavailable     = 91 * 600000
	sogUnavailable     = 1023
	cogUnavailable     = 3600
	headingUnavailable = 511
	rotUnavailable     = -128
)

// Minimum payload lengths in bits.
var minBits = map[uint64]int{
	1:  168,
	2:  168,
	3:  168,
	5:  420,
	14: 40,
	18: 168,
	19: 312,
	24: 160,
}

var distressWords = []string{"MAYDAY", "SART", "MOB", "EPIRB"}

// sartPrefixes maps the MMSI prefixes of search and rescue devices to their
// alert label.
var sartPrefixes = map[int64]string{
	970: "SART",
	972: "MOB",
	974: "EPIRB",
}

// DistressAlert returns the alert label for a device MMSI, or "".
func DistressAlert(mmsi int64) string {
	return sartPrefixes[mmsi/1_000_000]
}

func decodeMessage(armoured string, fill int, own bool) (processor.Result, error) {
	p, err := unarmour(armoured, fill)
	if err != nil {
		return processor.Result{}, err
	}

	msgType := p.unsigned(0, 6)
	need, ok := minBits[msgType]
	if !ok {
		return processor.Result{}, errors.WrapInvalid(fmt.Errorf("%w: message type %d", errors.ErrUnsupportedMessage, msgType),
			"ais", "decodeMessage", "dispatch message")
	}
	if p.nbits < need {
		return processor.Result{}, errors.WrapInvalid(
			fmt.Errorf("%w: message type %d has %d bits, need %d", errors.ErrParsingFailed, msgType, p.nbits, need),
			"ais", "decodeMessage", "check length")
	}

	mmsi := int64(p.unsigned(8, 30))
	var records []contact.Record
	switch msgType {
	case 1, 2, 3:
		records = positionReport(p, mmsi, 61, true)
	case 18:
		records = positionReport(p, mmsi, 57, false)
	case 19:
		records = positionReport(p, mmsi, 57, false)
		records = append(records, contact.Record{
			ID:    mmsi,
			Kind:  contact.KindDescriptor,
			Label: p.text(143, 120),
			Descriptor: &contact.Descriptor{
				ShipType:  int(p.unsigned(263, 8)),
				Bow:       int(p.unsigned(271, 9)),
				Stern:     int(p.unsigned(280, 9)),
				Port:      int(p.unsigned(289, 6)),
				Starboard: int(p.unsigned(295, 6)),
			},
		})
	case 5:
		records = []contact.Record{{
			ID:    mmsi,
			Kind:  contact.KindDescriptor,
			Label: p.text(112, 120),
			Descriptor: &contact.Descriptor{
				CallSign:    p.text(70, 42),
				ShipType:    int(p.unsigned(232, 8)),
				Bow:         int(p.unsigned(240, 9)),
				Stern:       int(p.unsigned(249, 9)),
				Port:        int(p.unsigned(258, 6)),
				Starboard:   int(p.unsigned(264, 6)),
				Draught:     float64(p.unsigned(294, 8)) / 10,
				Destination: p.text(302, 120),
			},
		}}
	case 24:
		records = staticDataReport(p, mmsi)
	case 14:
		records = safetyBroadcast(p, mmsi)
	}

	if own {
		return ownShipResult(records), nil
	}

	if alert := DistressAlert(mmsi); alert != "" && len(records) > 0 {
		records = append(records, contact.Record{ID: mmsi, Kind: contact.KindDistress, Alert: alert})
	}
	return processor.Result{Records: records}, nil
}

// positionReport decodes the kinematic block shared by class A (lonAt 61)
// and class B (lonAt 57) reports.
func positionReport(p payload, mmsi int64, lonAt int, classA bool) []contact.Record {
	sogAt, cogAt, headingAt := lonAt-11, lonAt+55, lonAt+67

	rec := contact.Record{ID: mmsi, Kind: contact.KindVelocity}

	if sog := p.unsigned(sogAt, 10); sog != sogUnavailable {
		rec.SOG = float64(sog) / 10
	}
	if cog := p.unsigned(cogAt, 12); cog < cogUnavailable {
		rec.COG = float64(cog) / 10
	}
	if hdg := p.unsigned(headingAt, 9); hdg != headingUnavailable && hdg < 360 {
		rec.Heading = float64(hdg)
		rec.HasHeading = true
	}

	lon := p.signed(lonAt, 28)
	lat := p.signed(lonAt+28, 27)
	if lon != lonUnavailable && lat != latUnavailable {
		pos := contact.Position{Lat: float64(lat) / 600000, Lon: float64(lon) / 600000}
		if pos.Valid() {
			rec.Kind = contact.KindReport
			rec.Position = pos
		}
	}

	if classA {
		rec.NavStatus = contact.NavStatusLabel(int(p.unsigned(38, 4)))
		rec.ROT = rateOfTurn(p.signed(42, 8))
	}
	return []contact.Record{rec}
}

// rateOfTurn converts the encoded ROT indicator to degrees per minute.
func rateOfTurn(raw int64) float64 {
	if raw == rotUnavailable || raw == 0 {
		return 0
	}
	rot := math.Pow(float64(raw)/4.733, 2)
	if raw < 0 {
		rot = -rot
	}
	return math.Round(rot*10) / 10
}

// staticDataReport decodes part A (name) or part B (type, call sign,
// dimensions) of a class B static report.
func staticDataReport(p payload, mmsi int64) []contact.Record {
	if p.unsigned(38, 2) == 0 {
		return []contact.Record{{ID: mmsi, Kind: contact.KindDescriptor, Label: p.text(40, 120)}}
	}
	return []contact.Record{{
		ID:   mmsi,
		Kind: contact.KindDescriptor,
		Descriptor: &contact.Descriptor{
			ShipType:  int(p.unsigned(40, 8)),
			CallSign:  p.text(90, 42),
			Bow:       int(p.unsigned(132, 9)),
			Stern:     int(p.unsigned(141, 9)),
			Port:      int(p.unsigned(150, 6)),
			Starboard: int(p.unsigned(156, 6)),
		},
	}}
}

// safetyBroadcast raises an alert when the text names a distress device.
// Routine safety text decodes to nothing.
func safetyBroadcast(p payload, mmsi int64) []contact.Record {
	text := p.text(40, p.nbits-40)
	upper := strings.ToUpper(text)
	for _, word := range distressWords {
		if strings.Contains(upper, word) {
			return []contact.Record{{ID: mmsi, Kind: contact.KindDistress, Alert: text}}
		}
	}
	return nil
}

// ownShipResult turns the local platform's own position report into an
// own-ship update. Static data about the local platform is dropped.
func ownShipResult(records []contact.Record) processor.Result {
	for _, rec := range records {
		if rec.Kind != contact.KindReport && rec.Kind != contact.KindVelocity {
			continue
		}
		upd := &processor.OwnShipUpdate{Velocity: &processor.Velocity{SOG: rec.SOG, COG: rec.COG}}
		if rec.Kind == contact.KindReport {
			pos := rec.Position
			upd.Position = &pos
		}
		if rec.HasHeading {
			heading := rec.Heading
			upd.Heading = &heading
		}
		return processor.Result{OwnShip: upd}
	}
	return processor.Result{}
}
