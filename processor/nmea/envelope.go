package nmea

import (
	"fmt"
	"strconv"
	"strings"

	gonmea "github.com/adrianmo/go-nmea"

	"github.com/c360/seatrack/errors"
)

// splitFields verifies the checksum, when present, and returns the comma
// separated fields after the start marker. fields[0] is the address.
func splitFields(line string) ([]string, error) {
	if len(line) < 2 || (line[0] != '$' && line[0] != '!') {
		return nil, errors.WrapInvalid(errors.ErrParsingFailed, "nmea", "splitFields", "missing start marker")
	}

	body := line[1:]
	if i := strings.LastIndexByte(body, '*'); i >= 0 {
		want := strings.TrimSpace(body[i+1:])
		body = body[:i]
		if got := gonmea.Checksum(body); !strings.EqualFold(got, want) {
			return nil, errors.WrapInvalid(
				fmt.Errorf("%w: got %s, want %s", errors.ErrChecksumFailed, got, want),
				"nmea", "splitFields", "verify checksum")
		}
	}
	return strings.Split(body, ","), nil
}

// parse wraps go-nmea parsing errors as invalid input.
func parse(line string) (gonmea.Sentence, error) {
	s, err := gonmea.Parse(line)
	if err != nil {
		if strings.Contains(err.Error(), "checksum") {
			err = fmt.Errorf("%w: %v", errors.ErrChecksumFailed, err)
		} else {
			err = fmt.Errorf("%w: %v", errors.ErrParsingFailed, err)
		}
		return nil, errors.WrapInvalid(err, "nmea", "parse", "parse sentence")
	}
	return s, nil
}

func field(fields []string, i int) string {
	if i < len(fields) {
		return strings.TrimSpace(fields[i])
	}
	return ""
}

// floatField parses an optional number; ok is false for an empty field.
func floatField(fields []string, i int, name string) (v float64, ok bool, err error) {
	s := field(fields, i)
	if s == "" {
		return 0, false, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false, errors.WrapInvalid(fmt.Errorf("%w: %s %q", errors.ErrParsingFailed, name, s),
			"nmea", "floatField", "parse "+name)
	}
	return v, true, nil
}

// requireFloat parses a mandatory number.
func requireFloat(fields []string, i int, name string) (float64, error) {
	v, ok, err := floatField(fields, i, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: missing %s", errors.ErrParsingFailed, name),
			"nmea", "requireFloat", "read "+name)
	}
	return v, nil
}

// coordinate parses a ddmm.mmmm (or dddmm.mmmm) value with its hemisphere.
func coordinate(value, hemisphere string, limit float64) (float64, error) {
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: coordinate %q", errors.ErrParsingFailed, value),
			"nmea", "coordinate", "parse coordinate")
	}

	deg := float64(int(raw / 100))
	deg += (raw - deg*100) / 60

	switch hemisphere {
	case "N", "E":
	case "S", "W":
		deg = -deg
	default:
		return 0, errors.WrapInvalid(fmt.Errorf("%w: hemisphere %q", errors.ErrParsingFailed, hemisphere),
			"nmea", "coordinate", "parse hemisphere")
	}

	if deg < -limit || deg > limit {
		return 0, errors.WrapInvalid(fmt.Errorf("%w: coordinate %v out of range", errors.ErrParsingFailed, deg),
			"nmea", "coordinate", "check range")
	}
	return deg, nil
}
