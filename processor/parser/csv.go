package parser

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// Columns are id, lat, lon, then optional sog, cog, heading and name.
const csvMinColumns = 3

// CSVParser handles free-form comma separated reports
type CSVParser struct{}

// NewCSVParser creates a new CSV parser
func NewCSVParser() *CSVParser {
	return &CSVParser{}
}

// Parse parses one "id,lat,lon[,sog,cog,heading[,name]]" record
func (p *CSVParser) Parse(data []byte) (Report, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return Report{}, ErrEmptyData
	}

	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	cols, err := r.Read()
	if err != nil && err != io.EOF {
		return Report{}, errors.WrapInvalid(fmt.Errorf("%w: %v", ErrInvalidFormat, err), "CSVParser", "Parse", "read record")
	}
	if len(cols) < csvMinColumns {
		return Report{}, errors.WrapInvalid(fmt.Errorf("%w: %d columns", ErrInvalidFormat, len(cols)),
			"CSVParser", "Parse", "count columns")
	}

	id, err := strconv.ParseInt(strings.TrimSpace(cols[0]), 10, 64)
	if err != nil {
		return Report{}, errors.WrapInvalid(fmt.Errorf("%w: id %q", ErrInvalidFormat, cols[0]), "CSVParser", "Parse", "parse id")
	}

	report := Report{ID: &id}
	targets := []**float64{&report.Lat, &report.Lon, &report.SOG, &report.COG, &report.Heading}
	for i, target := range targets {
		col := i + 1
		if col >= len(cols) || strings.TrimSpace(cols[col]) == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(cols[col]), 64)
		if err != nil {
			return Report{}, errors.WrapInvalid(fmt.Errorf("%w: column %d %q", ErrInvalidFormat, col, cols[col]),
				"CSVParser", "Parse", "parse number")
		}
		*target = &v
	}
	if len(cols) > 6 {
		report.Name = strings.TrimSpace(cols[6])
	}

	return report, nil
}

// Decode implements processor.Decoder for free-form lines
func (p *CSVParser) Decode(line string) (processor.Result, error) {
	report, err := p.Parse([]byte(line))
	if err != nil {
		return processor.Result{}, errors.WrapInvalid(err, "CSVParser", "Decode", "parse line")
	}
	return toResult(report, "CSVParser")
}

// Format returns the format name
func (p *CSVParser) Format() string {
	return "csv"
}

// Validate checks if the data looks like a CSV report
func (p *CSVParser) Validate(data []byte) error {
	_, err := p.Parse(data)
	return err
}
