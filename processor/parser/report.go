// Package parser decodes the structured (JSON) and free-form (CSV) report
// dialects into contact records.
package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/c360/seatrack/contact"
	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// Report is one vessel report in either dialect. Pointer fields are
// optional; nil means "not reported".
type Report struct {
	MMSI      *int64   `json:"mmsi,omitempty"`
	ID        *int64   `json:"id,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lon       *float64 `json:"lon,omitempty"`
	SOG       *float64 `json:"sog,omitempty"`
	COG       *float64 `json:"cog,omitempty"`
	Heading   *float64 `json:"heading,omitempty"`
	ROT       *float64 `json:"rot,omitempty"`
	NavStatus *int     `json:"nav_status,omitempty"`

	Name        string  `json:"name,omitempty"`
	CallSign    string  `json:"callsign,omitempty"`
	Destination string  `json:"destination,omitempty"`
	ShipType    int     `json:"ship_type,omitempty"`
	Bow         int     `json:"bow,omitempty"`
	Stern       int     `json:"stern,omitempty"`
	Port        int     `json:"port,omitempty"`
	Starboard   int     `json:"starboard,omitempty"`
	Draught     float64 `json:"draught,omitempty"`

	// ElapsedMS is how long ago the source last heard from the vessel.
	ElapsedMS int64 `json:"elapsed_ms,omitempty"`
}

// VesselID returns mmsi, falling back to id.
func (r Report) VesselID() (int64, bool) {
	switch {
	case r.MMSI != nil:
		return *r.MMSI, true
	case r.ID != nil:
		return *r.ID, true
	}
	return 0, false
}

func (r Report) hasStatic() bool {
	return strings.TrimSpace(r.CallSign) != "" || strings.TrimSpace(r.Destination) != "" ||
		r.ShipType != 0 || r.Bow != 0 || r.Stern != 0 || r.Port != 0 || r.Starboard != 0 || r.Draught != 0
}

func (r Report) descriptor() contact.Descriptor {
	return contact.Descriptor{
		Bow:         r.Bow,
		Stern:       r.Stern,
		Port:        r.Port,
		Starboard:   r.Starboard,
		ShipType:    r.ShipType,
		CallSign:    strings.TrimSpace(r.CallSign),
		Draught:     r.Draught,
		Destination: strings.TrimSpace(r.Destination),
	}
}

func (r Report) navStatus() string {
	if r.NavStatus == nil {
		return ""
	}
	return contact.NavStatusLabel(*r.NavStatus)
}

// Validate checks the id and the coordinate ranges.
func (r Report) Validate() error {
	id, ok := r.VesselID()
	if !ok || id <= 0 {
		return ErrMissingID
	}
	if (r.Lat == nil) != (r.Lon == nil) {
		return fmt.Errorf("%w: latitude and longitude must be reported together", ErrInvalidFormat)
	}
	if r.Lat != nil {
		if p := (contact.Position{Lat: *r.Lat, Lon: *r.Lon}); !p.Valid() {
			return fmt.Errorf("%w: position %v out of range", ErrInvalidFormat, p)
		}
	}
	return nil
}

// Records converts the report into the records the store merges.
func (r Report) Records() []contact.Record {
	id, _ := r.VesselID()
	var records []contact.Record

	kinematic := contact.Record{ID: id, NavStatus: r.navStatus()}
	if r.SOG != nil {
		kinematic.SOG = *r.SOG
	} else {
		kinematic.Missing |= contact.FieldSOG
	}
	if r.COG != nil {
		kinematic.COG = *r.COG
	} else {
		kinematic.Missing |= contact.FieldCOG
	}
	if r.ROT != nil {
		kinematic.ROT = *r.ROT
	} else {
		kinematic.Missing |= contact.FieldROT
	}
	if r.Heading != nil && *r.Heading >= 0 && *r.Heading < 360 {
		kinematic.Heading = *r.Heading
		kinematic.HasHeading = true
	}

	moving := r.SOG != nil || r.COG != nil || r.Heading != nil || r.ROT != nil
	switch {
	case r.Lat != nil && moving:
		kinematic.Kind = contact.KindReport
		kinematic.Position = contact.Position{Lat: *r.Lat, Lon: *r.Lon}
		records = append(records, kinematic)
	case r.Lat != nil:
		records = append(records, contact.Record{
			ID:        id,
			Kind:      contact.KindPosition,
			Position:  contact.Position{Lat: *r.Lat, Lon: *r.Lon},
			NavStatus: kinematic.NavStatus,
		})
	case moving:
		kinematic.Kind = contact.KindVelocity
		records = append(records, kinematic)
	}

	if r.hasStatic() || strings.TrimSpace(r.Name) != "" {
		rec := contact.Record{ID: id, Kind: contact.KindDescriptor, Label: r.Name}
		if r.hasStatic() {
			d := r.descriptor()
			rec.Descriptor = &d
		}
		records = append(records, rec)
	}
	return records
}

// Summary converts the report into a feed summary. The position is required.
func (r Report) Summary() (contact.Summary, error) {
	if err := r.Validate(); err != nil {
		return contact.Summary{}, err
	}
	if r.Lat == nil {
		return contact.Summary{}, fmt.Errorf("%w: position", ErrNoFields)
	}

	id, _ := r.VesselID()
	s := contact.Summary{
		ID:          id,
		Label:       r.Name,
		Position:    contact.Position{Lat: *r.Lat, Lon: *r.Lon},
		NavStatus:   r.navStatus(),
		ReportedAge: time.Duration(r.ElapsedMS) * time.Millisecond,
	}
	if r.hasStatic() {
		d := r.descriptor()
		s.Descriptor = &d
	}
	if r.SOG != nil {
		s.SOG = *r.SOG
	}
	if r.COG != nil {
		s.COG = *r.COG
	}
	if r.Heading != nil {
		s.Heading = *r.Heading
	}
	return s, nil
}

// toResult validates r and wraps it as a decode result.
func toResult(r Report, component string) (processor.Result, error) {
	if err := r.Validate(); err != nil {
		return processor.Result{}, errors.WrapInvalid(err, component, "Decode", "validate report")
	}
	records := r.Records()
	if len(records) == 0 {
		return processor.Result{}, errors.WrapInvalid(ErrNoFields, component, "Decode", "convert report")
	}
	return processor.Result{Records: records}, nil
}
