package contact

import "time"

// Kind identifies which fields of a Record a merge applies.
type Kind int

// Record kinds
const (
	// KindPosition carries an absolute position only.
	KindPosition Kind = iota + 1
	// KindVelocity carries speed, course, heading and rate of turn.
	KindVelocity
	// KindReport carries position and velocity together.
	KindReport
	// KindDescriptor carries a name and static data.
	KindDescriptor
	// KindBearingRange carries a bearing and range from own ship.
	KindBearingRange
	// KindDistress carries an alert text.
	KindDistress
)

var kindNames = map[Kind]string{
	KindPosition:     "position",
	KindVelocity:     "velocity",
	KindReport:       "report",
	KindDescriptor:   "descriptor",
	KindBearingRange: "bearing_range",
	KindDistress:     "distress",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Field is a bit set of velocity fields.
type Field uint8

// Velocity fields a source may leave unreported.
const (
	FieldSOG Field = 1 << iota
	FieldCOG
	FieldROT
)

// Record is one decoded update for a contact. Which fields are read depends
// on Kind; Label and NavStatus are applied for every kind when set.
type Record struct {
	ID   int64
	Kind Kind

	Position Position

	SOG        float64
	COG        float64
	Heading    float64
	HasHeading bool
	ROT        float64
	// Missing marks velocity fields the source did not report; the merge
	// keeps their current values.
	Missing Field

	NavStatus string
	Label     string

	// Descriptor is merged field by field; unset fields keep their value.
	Descriptor *Descriptor

	Alert string

	BearingDeg float64
	RangeNM    float64
	// RelativeBearing marks a bearing measured from own heading rather than
	// true north.
	RelativeBearing bool
}

// Summary is one vessel from the upstream polling feed.
type Summary struct {
	ID          int64
	Label       string
	Position    Position
	SOG         float64
	COG         float64
	Heading     float64
	NavStatus   string
	Descriptor  *Descriptor   // nil when the feed carried no static data
	ReportedAge time.Duration // Time since the feed last heard from the vessel
}
