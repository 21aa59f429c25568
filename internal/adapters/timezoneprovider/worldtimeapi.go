package timezoneprovider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/worldclock/internal/config"
	"github.com/Amund211/worldclock/internal/constants"
	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/logging"
	"github.com/Amund211/worldclock/internal/ratelimiting"
	"github.com/Amund211/worldclock/internal/reporting"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const DefaultBaseURL = "http://worldtimeapi.org/api/timezone"

// Field of the upstream response holding the value we track
const DefaultField = "datetime"

const fetchMinOperationTime = 150 * time.Millisecond

type HttpClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type RequestLimiter interface {
	Limit(ctx context.Context, minOperationTime time.Duration, operation func(ctx context.Context)) bool
}

type worldTimeAPIMetricsCollection struct {
	requestCount metric.Int64Counter
	returnCount  metric.Int64Counter
}

func setupWorldTimeAPIMetrics(meter metric.Meter) (worldTimeAPIMetricsCollection, error) {
	requestCount, err := meter.Int64Counter("timezoneprovider/worldtimeapi/request_count")
	if err != nil {
		return worldTimeAPIMetricsCollection{}, fmt.Errorf("failed to create request count metric: %w", err)
	}

	returnCount, err := meter.Int64Counter("timezoneprovider/worldtimeapi/return_count")
	if err != nil {
		return worldTimeAPIMetricsCollection{}, fmt.Errorf("failed to create return count metric: %w", err)
	}

	return worldTimeAPIMetricsCollection{
		requestCount: requestCount,
		returnCount:  returnCount,
	}, nil
}

type worldTimeAPI struct {
	httpClient HttpClient
	baseURL    string
	field      string
	limiter    RequestLimiter

	metrics worldTimeAPIMetricsCollection
	tracer  trace.Tracer
}

func NewWorldTimeAPI(
	httpClient HttpClient,
	baseURL string,
	limiter RequestLimiter,
) (TimezoneProvider, error) {
	const name = "worldclock/timezoneprovider/worldtimeapi"

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	metrics, err := setupWorldTimeAPIMetrics(otel.Meter(name))
	if err != nil {
		return nil, fmt.Errorf("failed to set up metrics: %w", err)
	}

	return &worldTimeAPI{
		httpClient: httpClient,
		baseURL:    baseURL,
		field:      DefaultField,
		limiter:    limiter,

		metrics: metrics,
		tracer:  otel.Tracer(name),
	}, nil
}

// Returns the mocked provider when configured to, otherwise the real API
// behind an upstream rate limit
func NewWorldTimeAPIOrMock(
	config config.Config,
	httpClient HttpClient,
	nowFunc func() time.Time,
	afterFunc func(time.Duration) <-chan time.Time,
) (TimezoneProvider, error) {
	if config.MockUpstream() {
		return NewMockedTimezoneProvider(nowFunc), nil
	}

	// Just made one up
	limiter := ratelimiting.NewOperationLimiter(300, 5*time.Minute, 20, nowFunc, afterFunc)

	return NewWorldTimeAPI(httpClient, DefaultBaseURL, limiter)
}

func (w *worldTimeAPI) Fetch(ctx context.Context, timezone string) (string, error) {
	ctx, span := w.tracer.Start(ctx, "WorldTimeAPI.Fetch", trace.WithAttributes(attribute.String("timezone", timezone)))
	defer span.End()

	value, err := w.fetch(ctx, timezone)

	result := "success"
	var statusErr *domain.UpstreamStatusError
	switch {
	case errors.As(err, &statusErr):
		result = "upstream_status"
	case errors.Is(err, domain.ErrMalformedResponse):
		result = "malformed"
	case errors.Is(err, domain.ErrTemporarilyUnavailable):
		result = "rate_limited"
	case err != nil:
		result = "transport"
	}
	w.metrics.returnCount.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	}

	return value, err
}

func (w *worldTimeAPI) fetch(ctx context.Context, timezone string) (string, error) {
	requestURL, err := url.JoinPath(w.baseURL, timezone)
	if err != nil {
		err := fmt.Errorf("%w: failed to build request url: %w", domain.ErrTransport, err)
		reporting.Report(ctx, err)
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		err := fmt.Errorf("%w: failed to create request: %w", domain.ErrTransport, err)
		reporting.Report(ctx, err)
		return "", err
	}

	req.Header.Set("User-Agent", constants.USER_AGENT)
	req.Header.Set("Accept", "application/json")

	var resp *http.Response
	var data []byte
	ran := w.limiter.Limit(ctx, fetchMinOperationTime, func(ctx context.Context) {
		ctx, span := w.tracer.Start(ctx, "WorldTimeAPI.httpget")
		defer span.End()

		w.metrics.requestCount.Add(ctx, 1)

		resp, err = w.httpClient.Do(req)
		if err != nil {
			err = fmt.Errorf("%w: failed to send request: %w", domain.ErrTransport, err)
			reporting.Report(ctx, err)
			return
		}

		defer resp.Body.Close()
		data, err = io.ReadAll(resp.Body)
		if err != nil {
			err = fmt.Errorf("%w: failed to read response body: %w", domain.ErrTransport, err)
			reporting.Report(ctx, err)
			return
		}
	})
	if !ran {
		logging.FromContext(ctx).WarnContext(ctx, "Did not run WorldTimeAPI.Fetch due to rate limiting", "ctx_error", ctx.Err())
		return "", fmt.Errorf("%w: too many requests to worldtimeapi", domain.ErrTemporarilyUnavailable)
	}

	if err != nil {
		return "", err
	}

	logging.FromContext(ctx).InfoContext(
		ctx,
		"Got worldtimeapi response",
		slog.String("timezone", timezone),
		slog.Int("status", resp.StatusCode),
	)

	value, err := valueFromResponse(resp.StatusCode, resp.Status, data, w.field)
	var statusErr *domain.UpstreamStatusError
	if errors.As(err, &statusErr) {
		// Unknown timezones etc. are not our fault, don't report
		return "", err
	} else if err != nil {
		err := fmt.Errorf("failed to get %s from worldtimeapi response: %w", w.field, err)
		reporting.Report(ctx, err, map[string]string{
			"data":   string(data),
			"status": strconv.Itoa(resp.StatusCode),
		})
		return "", err
	}

	return value, nil
}

// Returns the reason phrase of a response, e.g. "Not Found" for "404 Not Found"
func reasonPhrase(statusCode int, status string) string {
	reason := strings.TrimSpace(strings.TrimPrefix(status, strconv.Itoa(statusCode)))
	if reason != "" {
		return reason
	}
	if text := http.StatusText(statusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", statusCode)
}

func valueFromResponse(statusCode int, status string, data []byte, field string) (string, error) {
	if statusCode < 200 || statusCode >= 300 {
		statusErr := &domain.UpstreamStatusError{
			StatusCode: statusCode,
			StatusText: reasonPhrase(statusCode, status),
		}
		switch statusCode {
		case http.StatusTooManyRequests,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return "", fmt.Errorf("%w: %w", domain.ErrTemporarilyUnavailable, statusErr)
		}
		return "", statusErr
	}

	if !gjson.ValidBytes(data) {
		return "", fmt.Errorf("%w: response is not valid JSON", domain.ErrMalformedResponse)
	}

	parsed := gjson.ParseBytes(data)
	if !parsed.IsObject() {
		return "", fmt.Errorf("%w: response is not a JSON object", domain.ErrMalformedResponse)
	}

	// Escape so field names are matched literally, not as gjson paths
	value := parsed.Get(gjson.Escape(field))
	if !value.Exists() || value.Type == gjson.Null {
		return "", fmt.Errorf("%w: missing field %q", domain.ErrMalformedResponse, field)
	}

	// Strings unquoted, everything else as its JSON text
	if value.Type == gjson.String {
		return value.String(), nil
	}
	return value.Raw, nil
}
