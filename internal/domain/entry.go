package domain

import (
	"fmt"
	"time"
)

// Value held by a freshly added entry until its first fetch resolves
const PlaceholderValue = "..."

type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusError:
		return "error"
	default:
		return fmt.Sprintf("<invalid status>(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) {
	switch s {
	case StatusLoading, StatusReady, StatusError:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("cannot marshal invalid status %d", int(s))
}

func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "loading":
		*s = StatusLoading
	case "ready":
		*s = StatusReady
	case "error":
		*s = StatusError
	default:
		return fmt.Errorf("unknown status %q", string(text))
	}
	return nil
}

// Entry is the (value, status) pair currently held for a timezone.
//
// Value is the fetched datetime when Status is StatusReady and a human readable
// failure reason when Status is StatusError.
type Entry struct {
	Value     string
	Status    Status
	UpdatedAt time.Time
}

type TrackedTimezone struct {
	Timezone string
	Entry
}
