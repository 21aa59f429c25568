package timezoneprovider

import (
	"context"
)

type TimezoneProvider interface {
	// Returns the current datetime in the given timezone, as text.
	//
	// Returns a *domain.UpstreamStatusError if the upstream answered with a non-success status.
	// Returns domain.ErrMalformedResponse if the response could not be parsed.
	// Returns domain.ErrTransport if the request could not be sent or the response could not be read.
	// Returns domain.ErrTemporarilyUnavailable if the upstream is believed to be intermittently unavailable. The call may be retried later.
	Fetch(ctx context.Context, timezone string) (string, error)
}
