package entity

import (
	"errors"
	"fmt"
)

// ErrMalformedSnapshot is returned when a field the snapshot must carry is
// missing or has the wrong JSON type.
var ErrMalformedSnapshot = errors.New("malformed entity snapshot")

// ParseError reports a tag whose raw value does not match the expected format.
type ParseError struct {
	Field string
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse %s value %q: %v", e.Field, e.Raw, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
