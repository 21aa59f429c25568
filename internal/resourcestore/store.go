package resourcestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/logging"
	"github.com/Amund211/worldclock/internal/reporting"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Values committed for failures that carry no upstream status text
const (
	TransportFailureMessage = "failed to reach upstream"
	ParseFailureMessage     = "failed to parse response"
	UnavailableMessage      = "temporarily unavailable"
	InternalFailureMessage  = "internal error"
)

type Fetcher interface {
	// Returns the textual value of the resource named by key.
	//
	// Returns a *domain.UpstreamStatusError if the upstream answered with a non-success status.
	// Returns domain.ErrMalformedResponse if the response could not be parsed.
	Fetch(ctx context.Context, key string) (string, error)
}

// Change describes a single mutation of the store
type Change struct {
	Key     string
	Entry   domain.Entry
	Deleted bool
}

type record struct {
	entry domain.Entry
	// Ticket of the refresh that created this record. Changes when the key is
	// deleted and added again.
	incarnation uint64
	// Ticket of the most recently launched refresh of this key
	latestRefresh uint64
}

// Store tracks the fetch state of a set of keys.
//
// Reads and writes are synchronous. Refresh launches one goroutine per call
// that fetches the value and commits the outcome back into the store under
// the key captured at call time.
type Store struct {
	fetcher Fetcher
	policy  Policy
	nowFunc func() time.Time

	mu      sync.Mutex
	records map[string]*record
	// Monotonic counter handing out refresh tickets and incarnations
	tickets        uint64
	listeners      map[int]func(Change)
	nextListenerID int

	inflight sync.WaitGroup
}

func New(fetcher Fetcher, policy Policy, nowFunc func() time.Time) *Store {
	return &Store{
		fetcher:   fetcher,
		policy:    policy,
		nowFunc:   nowFunc,
		records:   make(map[string]*record),
		listeners: make(map[int]func(Change)),
	}
}

func (s *Store) Get(key string) (domain.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return domain.Entry{}, false
	}
	return rec.entry, true
}

// Keys returns the currently tracked keys in lexical order
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Sorted(maps.Keys(s.records))
}

// Snapshot returns a consistent copy of every entry
func (s *Store) Snapshot() map[string]domain.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make(map[string]domain.Entry, len(s.records))
	for key, rec := range s.records {
		snapshot[key] = rec.entry
	}
	return snapshot
}

// Add seeds key with a Loading placeholder, resetting it if already present, and refreshes it
func (s *Store) Add(ctx context.Context, key string) {
	s.mu.Lock()
	rec, ok := s.records[key]
	if !ok {
		rec = &record{incarnation: s.nextTicket()}
		s.records[key] = rec
	}
	rec.entry = domain.Entry{
		Value:     domain.PlaceholderValue,
		Status:    domain.StatusLoading,
		UpdatedAt: s.nowFunc(),
	}
	s.notify(Change{Key: key, Entry: rec.entry})
	s.mu.Unlock()

	s.Refresh(ctx, key)
}

// Refresh marks key as Loading and fetches it in the background.
//
// The fetch is not tied to the cancellation of ctx. Use Wait to block until
// all launched refreshes have resolved.
func (s *Store) Refresh(ctx context.Context, key string) {
	s.mu.Lock()
	ticket := s.nextTicket()
	var incarnation uint64
	if rec, ok := s.records[key]; ok {
		rec.entry.Status = domain.StatusLoading
		rec.entry.UpdatedAt = s.nowFunc()
		rec.latestRefresh = ticket
		incarnation = rec.incarnation
		s.notify(Change{Key: key, Entry: rec.entry})
	}
	s.mu.Unlock()

	fetchCtx := logging.AddMetaToContext(
		context.WithoutCancel(ctx),
		slog.String("component", "resourcestore"),
		slog.String("key", key),
	)

	metrics.inflightRefreshes.Add(fetchCtx, 1)
	s.inflight.Go(func() {
		defer metrics.inflightRefreshes.Add(fetchCtx, -1)
		s.refresh(fetchCtx, key, ticket, incarnation)
	})
}

// Delete removes key. Refreshes in flight for key are not cancelled.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key]
	if !ok {
		return
	}
	delete(s.records, key)
	s.notify(Change{Key: key, Entry: rec.entry, Deleted: true})
}

// Wait blocks until every refresh launched so far has resolved
func (s *Store) Wait() {
	s.inflight.Wait()
}

// Subscribe registers listener for every subsequent change, in the order the
// changes are applied. The listener is called with the store locked and must
// not call back into the store.
func (s *Store) Subscribe(listener func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

// Requires s.mu to be held
func (s *Store) nextTicket() uint64 {
	s.tickets++
	return s.tickets
}

// Requires s.mu to be held
func (s *Store) notify(change Change) {
	for _, id := range slices.Sorted(maps.Keys(s.listeners)) {
		s.listeners[id](change)
	}
}

func (s *Store) refresh(ctx context.Context, key string, ticket, incarnation uint64) {
	value, err := s.fetch(ctx, key)
	entry := entryFromOutcome(value, err, s.nowFunc())

	if err != nil {
		logging.FromContext(ctx).InfoContext(ctx, "Refresh failed", slog.String("error", err.Error()))
	}

	s.commit(ctx, key, ticket, incarnation, entry)
}

func (s *Store) fetch(ctx context.Context, key string) (value string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("fetcher panicked: %v", recovered)
			reporting.Report(ctx, err)
		}
	}()

	if s.policy.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.policy.FetchTimeout)
		defer cancel()
	}

	return s.fetcher.Fetch(ctx, key)
}

func entryFromOutcome(value string, err error, now time.Time) domain.Entry {
	if err == nil {
		return domain.Entry{Value: value, Status: domain.StatusReady, UpdatedAt: now}
	}

	message := InternalFailureMessage
	var statusErr *domain.UpstreamStatusError
	switch {
	case errors.As(err, &statusErr):
		message = statusErr.StatusText
	case errors.Is(err, domain.ErrMalformedResponse):
		message = ParseFailureMessage
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		message = UnavailableMessage
	case errors.Is(err, domain.ErrTransport),
		errors.Is(err, context.DeadlineExceeded):
		message = TransportFailureMessage
	}

	return domain.Entry{Value: message, Status: domain.StatusError, UpdatedAt: now}
}

func (s *Store) commit(ctx context.Context, key string, ticket, incarnation uint64, entry domain.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	discard := func(reason string) {
		metrics.discardedCommitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
		logging.FromContext(ctx).InfoContext(ctx, "Discarded refresh outcome", slog.String("reason", reason))
	}

	rec, ok := s.records[key]
	switch {
	case !ok && s.policy.DeletedKeys == DiscardDeleted:
		discard("deleted")
		return
	case !ok:
		rec = &record{incarnation: s.nextTicket(), latestRefresh: ticket}
		s.records[key] = rec
	case s.policy.DeletedKeys == DiscardDeleted && rec.incarnation != incarnation:
		// Launched while the key was absent, or before a delete and re-add
		discard("deleted")
		return
	case s.policy.Ordering == LatestRefreshWins && ticket < rec.latestRefresh:
		discard("superseded")
		return
	}

	rec.entry = entry
	s.notify(Change{Key: key, Entry: entry})

	metrics.commitCount.Add(ctx, 1, metric.WithAttributes(attribute.String("status", entry.Status.String())))
	logging.FromContext(ctx).InfoContext(ctx, "Committed refresh outcome", slog.String("status", entry.Status.String()))
}
