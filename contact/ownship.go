package contact

import (
	"sync"
	"time"
)

// OwnShipFix is a copy of the own-ship record.
type OwnShipFix struct {
	Position    Position  `json:"position"`
	Heading     float64   `json:"heading"`
	HasHeading  bool      `json:"has_heading"`
	SOG         float64   `json:"sog"`
	COG         float64   `json:"cog"`
	FixTime     time.Time `json:"fix_time"`
	HeadingTime time.Time `json:"heading_time,omitempty"`
}

// OwnShip is the local platform. It is written by own position and heading
// sentences and read by bearing/range merges on other goroutines.
type OwnShip struct {
	mu     sync.RWMutex
	fix    OwnShipFix
	hasFix bool
}

// UpdatePosition records a position fix.
func (o *OwnShip) UpdatePosition(p Position, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.fix.Position = p
	o.fix.FixTime = at
	o.hasFix = true
}

// UpdateHeading records a true heading.
func (o *OwnShip) UpdateHeading(heading float64, at time.Time) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.fix.Heading = normalizeBearing(heading)
	o.fix.HasHeading = true
	o.fix.HeadingTime = at
}

// UpdateVelocity records speed and course over ground.
func (o *OwnShip) UpdateVelocity(sog, cog float64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.fix.SOG = sog
	o.fix.COG = cog
}

// Fix returns the current record. ok is false until a position fix has
// arrived.
func (o *OwnShip) Fix() (OwnShipFix, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return o.fix, o.hasFix
}
