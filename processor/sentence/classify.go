// Package sentence classifies raw input lines by dialect.
package sentence

// Dialect is the broad format of a line.
type Dialect uint8

// Dialects
const (
	// Opaque is anything not recognized as another dialect.
	Opaque Dialect = iota
	// Talker is a "$" or "!" sentence with a talker and sentence id.
	Talker
	// JSON is a structured report object.
	JSON
)

func (d Dialect) String() string {
	switch d {
	case Talker:
		return "talker"
	case JSON:
		return "json"
	default:
		return "opaque"
	}
}

// Tag is the classification of one line.
type Tag struct {
	Dialect Dialect
	// Start is the sentence start marker, '$' or '!', for talker sentences.
	Start byte
	// Talker is the one or two letter talker id; "P" for proprietary sentences.
	Talker string
	// Sentence is the three letter sentence id.
	Sentence string
}

// Proprietary reports whether the tag is a manufacturer specific sentence.
func (t Tag) Proprietary() bool {
	return t.Dialect == Talker && t.Talker == "P"
}

// Key returns the talker-independent dispatch key: the sentence id, prefixed
// with "P" for proprietary sentences.
func (t Tag) Key() string {
	if t.Proprietary() {
		return "P" + t.Sentence
	}
	return t.Sentence
}

// Classify returns the tag for line. It never fails; anything malformed is
// Opaque.
func Classify(line string) Tag {
	if line == "" {
		return Tag{Dialect: Opaque}
	}

	switch line[0] {
	case '{':
		return Tag{Dialect: JSON}
	case '$', '!':
		if tag, ok := classifyTalker(line); ok {
			return tag
		}
	}
	return Tag{Dialect: Opaque}
}

// classifyTalker reads the address field: "$GPGGA," has talker "GP" and
// sentence "GGA", "$PTRK," has talker "P" and sentence "TRK".
func classifyTalker(line string) (Tag, bool) {
	addr := line[1:]
	for i := 0; i < len(addr); i++ {
		if addr[i] == ',' || addr[i] == '*' {
			addr = addr[:i]
			break
		}
	}
	if len(addr) < 4 || !upperAlnum(addr) {
		return Tag{}, false
	}

	var talker, code string
	switch {
	case addr[0] == 'P':
		talker, code = "P", addr[1:4]
	case len(addr) >= 5:
		talker, code = addr[:2], addr[2:5]
	default:
		talker, code = addr[:1], addr[1:4]
	}
	if !upperAlpha(talker) || !upperAlpha(code) {
		return Tag{}, false
	}

	return Tag{Dialect: Talker, Start: line[0], Talker: talker, Sentence: code}, true
}

func upperAlpha(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}

func upperAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
