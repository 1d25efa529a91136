package parser

import (
	"encoding/json"
	"strings"

	"github.com/c360/seatrack/errors"
	"github.com/c360/seatrack/processor"
)

// JSONParser handles structured JSON vessel reports
type JSONParser struct{}

// NewJSONParser creates a new JSON parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// Parse parses one JSON object into a Report
func (p *JSONParser) Parse(data []byte) (Report, error) {
	if len(data) == 0 {
		return Report{}, ErrEmptyData
	}

	var result Report
	if err := json.Unmarshal(data, &result); err != nil {
		return Report{}, errors.WrapInvalid(err, "JSONParser", "Parse", "json parsing failed")
	}

	return result, nil
}

// ParseBatch parses a JSON array of reports
func (p *JSONParser) ParseBatch(data []byte) ([]Report, error) {
	if len(data) == 0 {
		return nil, ErrEmptyData
	}

	var result []Report
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.WrapInvalid(err, "JSONParser", "ParseBatch", "json parsing failed")
	}

	return result, nil
}

// Decode implements processor.Decoder for JSON report lines
func (p *JSONParser) Decode(line string) (processor.Result, error) {
	report, err := p.Parse([]byte(strings.TrimSpace(line)))
	if err != nil {
		return processor.Result{}, errors.WrapInvalid(err, "JSONParser", "Decode", "parse line")
	}
	return toResult(report, "JSONParser")
}

// Format returns the format name
func (p *JSONParser) Format() string {
	return "json"
}

// Validate checks if the data is valid JSON
func (p *JSONParser) Validate(data []byte) error {
	if len(data) == 0 {
		return ErrEmptyData
	}

	var temp any
	if err := json.Unmarshal(data, &temp); err != nil {
		return errors.WrapInvalid(err, "JSONParser", "Validate", "invalid json format")
	}

	return nil
}
