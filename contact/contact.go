package contact

import (
	"strconv"
	"strings"
	"time"
)

// NavStatusUndefined is the navigational status of a contact that has not
// reported one.
const NavStatusUndefined = "undefined"

// RadarIDBase offsets radar target numbers so synthesized ids never collide
// with nine-digit vessel ids.
const RadarIDBase int64 = 1_000_000_000

var navStatusLabels = [...]string{
	0:  "under way using engine",
	1:  "at anchor",
	2:  "not under command",
	3:  "restricted manoeuvrability",
	4:  "constrained by draught",
	5:  "moored",
	6:  "aground",
	7:  "engaged in fishing",
	8:  "under way sailing",
	14: "ais-sart active",
	15: NavStatusUndefined,
}

// NavStatusLabel maps a numeric navigational status to its label. Reserved
// and out of range codes map to NavStatusUndefined.
func NavStatusLabel(code int) string {
	if code < 0 || code >= len(navStatusLabels) || navStatusLabels[code] == "" {
		return NavStatusUndefined
	}
	return navStatusLabels[code]
}

// Position is a latitude/longitude pair in degrees.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the position lies on the globe.
func (p Position) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// Descriptor is the static data of a vessel. Dimensions are offsets in
// metres from the position reference point.
type Descriptor struct {
	Bow         int     `json:"bow,omitempty"`
	Stern       int     `json:"stern,omitempty"`
	Port        int     `json:"port,omitempty"`
	Starboard   int     `json:"starboard,omitempty"`
	ShipType    int     `json:"ship_type,omitempty"`
	CallSign    string  `json:"call_sign,omitempty"`
	Draught     float64 `json:"draught,omitempty"`
	Destination string  `json:"destination,omitempty"`
}

// Length returns the overall length in metres.
func (d Descriptor) Length() int { return d.Bow + d.Stern }

// Beam returns the overall width in metres.
func (d Descriptor) Beam() int { return d.Port + d.Starboard }

// merge copies every set field of src over d.
func (d *Descriptor) merge(src Descriptor) {
	if src.Bow != 0 {
		d.Bow = src.Bow
	}
	if src.Stern != 0 {
		d.Stern = src.Stern
	}
	if src.Port != 0 {
		d.Port = src.Port
	}
	if src.Starboard != 0 {
		d.Starboard = src.Starboard
	}
	if src.ShipType != 0 {
		d.ShipType = src.ShipType
	}
	if cs := strings.TrimSpace(src.CallSign); cs != "" {
		d.CallSign = cs
	}
	if src.Draught != 0 {
		d.Draught = src.Draught
	}
	if dest := strings.TrimSpace(src.Destination); dest != "" {
		d.Destination = dest
	}
}

// Contact is the current best-known state of one tracked vessel.
type Contact struct {
	ID         int64       `json:"id"`
	Label      string      `json:"label"`
	Position   Position    `json:"position"`
	SOG        float64     `json:"sog"`
	COG        float64     `json:"cog"`
	Heading    float64     `json:"heading"`
	ROT        float64     `json:"rot"`
	NavStatus  string      `json:"nav_status"`
	Alert      string      `json:"alert,omitempty"`
	LastUpdate time.Time   `json:"last_update"`
	Descriptor *Descriptor `json:"descriptor,omitempty"`
}

func newContact(id int64) *Contact {
	return &Contact{
		ID:        id,
		Label:     strconv.FormatInt(id, 10),
		NavStatus: NavStatusUndefined,
	}
}

// Dimensions returns length and beam. ok is false until a static descriptor
// has been merged.
func (c Contact) Dimensions() (length, beam int, ok bool) {
	if c.Descriptor == nil {
		return 0, 0, false
	}
	return c.Descriptor.Length(), c.Descriptor.Beam(), true
}

// ShipType returns the ship type code. ok is false until a static descriptor
// has been merged.
func (c Contact) ShipType() (int, bool) {
	if c.Descriptor == nil {
		return 0, false
	}
	return c.Descriptor.ShipType, true
}

// IsRadar reports whether the contact is a synthesized radar track.
func (c Contact) IsRadar() bool {
	return c.ID >= RadarIDBase
}

// clone returns a copy that shares no memory with c.
func (c *Contact) clone() Contact {
	out := *c
	if c.Descriptor != nil {
		d := *c.Descriptor
		out.Descriptor = &d
	}
	return out
}

// setLabel replaces the label unless name is blank.
func (c *Contact) setLabel(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == c.Label {
		return false
	}
	c.Label = name
	return true
}
