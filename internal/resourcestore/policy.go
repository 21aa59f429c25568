package resourcestore

import "time"

// Decides what happens when refreshes of the same key overlap
type Ordering int

const (
	// Whichever refresh resolves last determines the entry, even if it was
	// launched before a refresh that already resolved
	LastCommitWins Ordering = iota
	// Only the most recently launched refresh of a key may commit. Outcomes of
	// superseded refreshes are discarded.
	LatestRefreshWins
)

// Decides what happens to outcomes of refreshes whose key was deleted in flight
type DeletedKeyPolicy int

const (
	// Outcomes for keys that were deleted (or never present) when the refresh
	// resolves are dropped. This also covers keys that were deleted and added
	// again while the refresh was in flight.
	DiscardDeleted DeletedKeyPolicy = iota
	// Outcomes are written by key name, re-creating deleted keys
	ResurrectDeleted
)

type Policy struct {
	Ordering    Ordering
	DeletedKeys DeletedKeyPolicy
	// Deadline for a single fetch. Zero means no deadline.
	FetchTimeout time.Duration
}

func (o Ordering) String() string {
	switch o {
	case LastCommitWins:
		return "last-commit-wins"
	case LatestRefreshWins:
		return "latest-refresh-wins"
	}
	return "<invalid ordering>"
}

func (p DeletedKeyPolicy) String() string {
	switch p {
	case DiscardDeleted:
		return "discard-deleted"
	case ResurrectDeleted:
		return "resurrect-deleted"
	}
	return "<invalid deleted key policy>"
}
