package logging

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

// Create a slog.Handler that adds Google Cloud Trace fields to log records
//
// NOTE: Requires the use of the *Context slog methods to get the tracing info
func NewCloudTraceLogHandler(base slog.Handler, project string) slog.Handler {
	return &cloudTraceLogHandler{base: base, project: project}
}

type cloudTraceLogHandler struct {
	base    slog.Handler
	project string
}

func (h *cloudTraceLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *cloudTraceLogHandler) Handle(ctx context.Context, r slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return h.base.Handle(ctx, r)
	}

	// https://docs.cloud.google.com/logging/docs/agent/logging/configuration#special-fields
	r.AddAttrs(
		slog.String("logging.googleapis.com/trace", fmt.Sprintf("projects/%s/traces/%s", h.project, sc.TraceID())),
		slog.String("logging.googleapis.com/spanId", sc.SpanID().String()),
		slog.Bool("logging.googleapis.com/trace_sampled", sc.TraceFlags().IsSampled()),
	)
	return h.base.Handle(ctx, r)
}

func (h *cloudTraceLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewCloudTraceLogHandler(h.base.WithAttrs(attrs), h.project)
}

func (h *cloudTraceLogHandler) WithGroup(name string) slog.Handler {
	return NewCloudTraceLogHandler(h.base.WithGroup(name), h.project)
}

var _ slog.Handler = (*cloudTraceLogHandler)(nil)
