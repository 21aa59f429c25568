package ports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Amund211/worldclock/internal/app"
	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/logging"
	"github.com/Amund211/worldclock/internal/ratelimiting"
	"github.com/Amund211/worldclock/internal/reporting"
)

type timezoneEntry struct {
	Timezone  string        `json:"timezone"`
	Value     string        `json:"value"`
	Status    domain.Status `json:"status"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type timezoneResponse struct {
	Success  bool           `json:"success"`
	Timezone *timezoneEntry `json:"timezone,omitempty"`
	Cause    string         `json:"cause,omitempty"`
}

type listTimezonesResponse struct {
	Success   bool            `json:"success"`
	Timezones []timezoneEntry `json:"timezones"`
}

func toTimezoneEntry(tracked domain.TrackedTimezone) timezoneEntry {
	return timezoneEntry{
		Timezone:  tracked.Timezone,
		Value:     tracked.Value,
		Status:    tracked.Status,
		UpdatedAt: tracked.UpdatedAt,
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, statusCode int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		reporting.Report(ctx, fmt.Errorf("failed to marshal response: %w", err))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"success":false,"cause":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(data)
}

func writeError(ctx context.Context, w http.ResponseWriter, cause string, statusCode int) {
	writeJSON(ctx, w, statusCode, timezoneResponse{Success: false, Cause: cause})
}

// Maps errors from the timezone operations to a response. Returns false if err is nil.
func handleTimezoneError(ctx context.Context, w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, domain.ErrInvalidTimezone):
		writeError(ctx, w, "invalid timezone", http.StatusBadRequest)
	case errors.Is(err, domain.ErrTimezoneNotTracked):
		writeError(ctx, w, "not found", http.StatusNotFound)
	default:
		reporting.Report(ctx, fmt.Errorf("unexpected error from timezone operation: %w", err))
		writeError(ctx, w, "internal server error", http.StatusInternalServerError)
	}
	return true
}

func MakeListTimezonesHandler(
	listTimezones app.ListTimezones,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := buildPortMiddleware("listtimezones", allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		tracked := listTimezones(ctx)

		timezones := make([]timezoneEntry, 0, len(tracked))
		for _, timezone := range tracked {
			timezones = append(timezones, toTimezoneEntry(timezone))
		}

		writeJSON(ctx, w, http.StatusOK, listTimezonesResponse{Success: true, Timezones: timezones})
	}

	return middleware(handler)
}

// Builds a handler for an operation on a single timezone, taken from the path
func makeTimezoneHandler(
	portName string,
	operation func(ctx context.Context, timezone string) (domain.TrackedTimezone, error),
	successStatusCode int,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := buildPortMiddleware(portName, allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		timezone := r.PathValue("timezone")

		tracked, err := operation(ctx, timezone)
		if handleTimezoneError(ctx, w, err) {
			return
		}

		ctx = logging.AddMetaToContext(ctx, slog.String("status", tracked.Status.String()))
		logging.FromContext(ctx).InfoContext(ctx, "Handled timezone request")

		entry := toTimezoneEntry(tracked)
		writeJSON(ctx, w, successStatusCode, timezoneResponse{Success: true, Timezone: &entry})
	}

	return middleware(handler)
}

func MakeGetTimezoneHandler(
	getTimezone app.GetTimezone,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	return makeTimezoneHandler("gettimezone", getTimezone, http.StatusOK, allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)
}

// Responds with the seeded entry, the fetch continues in the background
func MakeAddTimezoneHandler(
	addTimezone app.AddTimezone,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	return makeTimezoneHandler("addtimezone", addTimezone, http.StatusAccepted, allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)
}

func MakeRefreshTimezoneHandler(
	refreshTimezone app.RefreshTimezone,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	return makeTimezoneHandler("refreshtimezone", refreshTimezone, http.StatusAccepted, allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)
}

func MakeRemoveTimezoneHandler(
	removeTimezone app.RemoveTimezone,
	allowedOrigins *DomainSuffixes,
	ipRateLimiter ratelimiting.RequestRateLimiter,
	rootLogger *slog.Logger,
	sentryMiddleware func(http.HandlerFunc) http.HandlerFunc,
) http.HandlerFunc {
	middleware := buildPortMiddleware("removetimezone", allowedOrigins, ipRateLimiter, rootLogger, sentryMiddleware)

	handler := func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		removed, err := removeTimezone(ctx, r.PathValue("timezone"))
		if handleTimezoneError(ctx, w, err) {
			return
		}

		logging.FromContext(ctx).InfoContext(ctx, "Removed timezone", slog.String("normalized", removed))
		w.WriteHeader(http.StatusNoContent)
	}

	return middleware(handler)
}
