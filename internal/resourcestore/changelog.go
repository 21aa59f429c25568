package resourcestore

import (
	"context"
	"log/slog"
)

// Returns a listener for Subscribe that logs every change at debug level
func NewChangeLogger(logger *slog.Logger) func(Change) {
	return func(change Change) {
		logger.LogAttrs(
			context.Background(),
			slog.LevelDebug,
			"Store changed",
			slog.String("key", change.Key),
			slog.String("status", change.Entry.Status.String()),
			slog.String("value", change.Entry.Value),
			slog.Bool("deleted", change.Deleted),
		)
	}
}
