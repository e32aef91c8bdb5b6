package endpoint

import (
	"errors"
	"fmt"
)

var (
	ErrEmpty             = errors.New("empty endpoint")
	ErrMalformedMapping  = errors.New("mapping must be of the form LISTEN->TARGET")
	ErrUnknownScheme     = errors.New("unknown scheme")
	ErrUnsupported       = errors.New("transport not supported on this platform")
	ErrInvalidPort       = errors.New("invalid port")
	ErrInterfaceNotFound = errors.New("interface not found")
)

// ParseError reports a malformed endpoint or mapping. Side is "listen" or
// "target" when the error came from one half of a mapping.
type ParseError struct {
	Input string
	Side  string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Side == "" {
		return fmt.Sprintf("parse %q: %v", e.Input, e.Err)
	}
	return fmt.Sprintf("parse %s endpoint %q: %v", e.Side, e.Input, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
