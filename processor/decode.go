// Package processor defines the contract between the router and the dialect
// decoders in its subpackages.
package processor

import (
	"time"

	"github.com/c360/seatrack/contact"
)

// Decoder turns one trimmed line into contact records and own-ship updates.
// An error means the line could not be classified; it is never fatal.
type Decoder interface {
	Decode(line string) (Result, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(line string) (Result, error)

// Decode calls f.
func (f DecoderFunc) Decode(line string) (Result, error) {
	return f(line)
}

// Result is what one line decodes to. A line may describe remote contacts,
// the local platform, both, or nothing yet (a partial multi-sentence message).
type Result struct {
	Records []contact.Record
	OwnShip *OwnShipUpdate
}

// Empty reports whether the line produced nothing to apply.
func (r Result) Empty() bool {
	return len(r.Records) == 0 && r.OwnShip == nil
}

// OwnShipUpdate carries the own-ship fields a sentence reported. Nil
// pointers leave the record untouched.
type OwnShipUpdate struct {
	Position *contact.Position
	Heading  *float64
	Velocity *Velocity
}

// Velocity is speed in knots and course in degrees true.
type Velocity struct {
	SOG float64
	COG float64
}

// Apply writes u into own.
func (u OwnShipUpdate) Apply(own *contact.OwnShip, at time.Time) {
	if u.Position != nil {
		own.UpdatePosition(*u.Position, at)
	}
	if u.Heading != nil {
		own.UpdateHeading(*u.Heading, at)
	}
	if u.Velocity != nil {
		own.UpdateVelocity(u.Velocity.SOG, u.Velocity.COG)
	}
}
