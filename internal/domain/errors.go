package domain

import (
	"errors"
	"fmt"
)

var (
	ErrTransport              = errors.New("transport failure")
	ErrMalformedResponse      = errors.New("malformed response")
	ErrTemporarilyUnavailable = errors.New("temporarily unavailable")
	ErrInvalidTimezone        = errors.New("invalid timezone")
	ErrTimezoneNotTracked     = errors.New("timezone not tracked")
)

// UpstreamStatusError is returned when the upstream answered with a non-success status code
type UpstreamStatusError struct {
	StatusCode int
	// Reason phrase of the response, e.g. "Not Found"
	StatusText string
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d (%s)", e.StatusCode, e.StatusText)
}
