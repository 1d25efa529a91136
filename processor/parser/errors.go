package parser

import "errors"

// Common parsing errors
var (
	ErrInvalidFormat = errors.New("invalid data format")
	ErrEmptyData     = errors.New("empty data")
	ErrMissingID     = errors.New("missing vessel id")
	ErrNoFields      = errors.New("no usable fields")
)
