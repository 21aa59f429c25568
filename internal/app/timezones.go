package app

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/strutils"
)

type ListTimezones func(ctx context.Context) []domain.TrackedTimezone

// Returns domain.ErrInvalidTimezone or domain.ErrTimezoneNotTracked
type GetTimezone func(ctx context.Context, timezone string) (domain.TrackedTimezone, error)

// Starts tracking timezone, or resets it if it is already tracked.
// Returns domain.ErrInvalidTimezone.
type AddTimezone func(ctx context.Context, timezone string) (domain.TrackedTimezone, error)

// Returns domain.ErrInvalidTimezone or domain.ErrTimezoneNotTracked
type RefreshTimezone func(ctx context.Context, timezone string) (domain.TrackedTimezone, error)

// Stops tracking timezone. Removing an untracked timezone is not an error.
// Returns domain.ErrInvalidTimezone.
type RemoveTimezone func(ctx context.Context, timezone string) (string, error)

type timezoneStore interface {
	Get(key string) (domain.Entry, bool)
	Snapshot() map[string]domain.Entry
	Add(ctx context.Context, key string)
	Refresh(ctx context.Context, key string)
	Delete(key string)
}

func normalize(timezone string) (string, error) {
	normalized, err := strutils.NormalizeTimezone(timezone)
	if err != nil {
		return "", fmt.Errorf("could not normalize %q: %w", timezone, err)
	}
	return normalized, nil
}

func BuildListTimezones(store timezoneStore) ListTimezones {
	return func(ctx context.Context) []domain.TrackedTimezone {
		snapshot := store.Snapshot()

		timezones := make([]domain.TrackedTimezone, 0, len(snapshot))
		for _, key := range slices.Sorted(maps.Keys(snapshot)) {
			timezones = append(timezones, domain.TrackedTimezone{Timezone: key, Entry: snapshot[key]})
		}
		return timezones
	}
}

func BuildGetTimezone(store timezoneStore) GetTimezone {
	return func(ctx context.Context, timezone string) (domain.TrackedTimezone, error) {
		normalized, err := normalize(timezone)
		if err != nil {
			return domain.TrackedTimezone{}, err
		}

		entry, ok := store.Get(normalized)
		if !ok {
			return domain.TrackedTimezone{}, fmt.Errorf("%w: %s", domain.ErrTimezoneNotTracked, normalized)
		}

		return domain.TrackedTimezone{Timezone: normalized, Entry: entry}, nil
	}
}

func BuildAddTimezone(store timezoneStore) AddTimezone {
	return func(ctx context.Context, timezone string) (domain.TrackedTimezone, error) {
		normalized, err := normalize(timezone)
		if err != nil {
			return domain.TrackedTimezone{}, err
		}

		store.Add(ctx, normalized)

		entry, ok := store.Get(normalized)
		if !ok {
			// Removed again before we could read it back
			return domain.TrackedTimezone{}, fmt.Errorf("%w: %s", domain.ErrTimezoneNotTracked, normalized)
		}
		return domain.TrackedTimezone{Timezone: normalized, Entry: entry}, nil
	}
}

func BuildRefreshTimezone(store timezoneStore) RefreshTimezone {
	return func(ctx context.Context, timezone string) (domain.TrackedTimezone, error) {
		normalized, err := normalize(timezone)
		if err != nil {
			return domain.TrackedTimezone{}, err
		}

		if _, ok := store.Get(normalized); !ok {
			return domain.TrackedTimezone{}, fmt.Errorf("%w: %s", domain.ErrTimezoneNotTracked, normalized)
		}

		store.Refresh(ctx, normalized)

		entry, ok := store.Get(normalized)
		if !ok {
			return domain.TrackedTimezone{}, fmt.Errorf("%w: %s", domain.ErrTimezoneNotTracked, normalized)
		}
		return domain.TrackedTimezone{Timezone: normalized, Entry: entry}, nil
	}
}

func BuildRemoveTimezone(store timezoneStore) RemoveTimezone {
	return func(ctx context.Context, timezone string) (string, error) {
		normalized, err := normalize(timezone)
		if err != nil {
			return "", err
		}

		store.Delete(normalized)
		return normalized, nil
	}
}

// Adds every timezone, skipping (and returning) the ones that fail to normalize
func SeedTimezones(ctx context.Context, add AddTimezone, timezones []string) []error {
	var errs []error
	for _, timezone := range timezones {
		if _, err := add(ctx, timezone); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
