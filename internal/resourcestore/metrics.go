package resourcestore

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

type storeMetricsCollection struct {
	commitCount          metric.Int64Counter
	discardedCommitCount metric.Int64Counter
	inflightRefreshes    metric.Int64UpDownCounter
}

var metrics storeMetricsCollection

func init() {
	const name = "worldclock/resourcestore"
	meter := otel.Meter(name)

	commitCount, err := meter.Int64Counter(
		"resourcestore/commit_count",
		metric.WithDescription("Refresh outcomes written to the store"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create commit count metric: %w", err))
	}

	discardedCommitCount, err := meter.Int64Counter(
		"resourcestore/discarded_commit_count",
		metric.WithDescription("Refresh outcomes dropped because the key was deleted or the refresh was superseded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create discarded commit count metric: %w", err))
	}

	inflightRefreshes, err := meter.Int64UpDownCounter(
		"resourcestore/inflight_refreshes",
		metric.WithDescription("Refreshes that have been launched but not yet resolved"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create inflight refreshes metric: %w", err))
	}

	metrics = storeMetricsCollection{
		commitCount:          commitCount,
		discardedCommitCount: discardedCommitCount,
		inflightRefreshes:    inflightRefreshes,
	}
}
