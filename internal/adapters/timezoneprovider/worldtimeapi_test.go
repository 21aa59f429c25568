package timezoneprovider_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/Amund211/worldclock/internal/adapters/timezoneprovider"
	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/resourcestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockedHttpClient struct {
	t           *testing.T
	expectedURL string
	statusCode  int
	status      string
	body        io.ReadCloser
	err         error
}

func (m *mockedHttpClient) Do(req *http.Request) (*http.Response, error) {
	expectedHeaders := http.Header{
		"User-Agent": {"worldclock/1.0 (+https://github.com/Amund211/worldclock)"},
		"Accept":     {"application/json"},
	}

	require.Equal(m.t, m.expectedURL, req.URL.String())
	require.True(m.t, reflect.DeepEqual(expectedHeaders, req.Header), "Expected %v, got %v", expectedHeaders, req.Header)

	if m.err != nil {
		return nil, m.err
	}

	return &http.Response{
		StatusCode: m.statusCode,
		Status:     m.status,
		Body:       m.body,
	}, nil
}

func body(s string) io.ReadCloser {
	return io.NopCloser(bytes.NewBufferString(s))
}

type cantRead struct{}

func (c cantRead) Read(p []byte) (n int, err error) {
	return 0, assert.AnError
}

func (c cantRead) Close() error {
	return nil
}

type allowAll struct{}

func (allowAll) Limit(ctx context.Context, minOperationTime time.Duration, operation func(ctx context.Context)) bool {
	operation(ctx)
	return true
}

type denyAll struct{}

func (denyAll) Limit(ctx context.Context, minOperationTime time.Duration, operation func(ctx context.Context)) bool {
	return false
}

func TestWorldTimeAPI(t *testing.T) {
	t.Parallel()

	const baseURL = "http://worldtimeapi.org/api/timezone"

	cases := []struct {
		name        string
		timezone    string
		expectedURL string
		statusCode  int
		status      string
		body        io.ReadCloser
		clientErr   error

		expectedValue string
		check         func(t *testing.T, err error)
	}{
		{
			name:          "success",
			timezone:      "Europe/London",
			expectedURL:   "http://worldtimeapi.org/api/timezone/Europe/London",
			statusCode:    200,
			status:        "200 OK",
			body:          body(`{"abbreviation":"GMT","datetime":"2024-01-01T00:00:00","timezone":"Europe/London"}`),
			expectedValue: "2024-01-01T00:00:00",
		},
		{
			name:        "three segment timezone",
			timezone:    "America/Argentina/Salta",
			expectedURL: "http://worldtimeapi.org/api/timezone/America/Argentina/Salta",
			statusCode:  200,
			status:      "200 OK",
			body:        body(`{"datetime":"2024-01-01T00:00:00.000000-03:00"}`),

			expectedValue: "2024-01-01T00:00:00.000000-03:00",
		},
		{
			name:        "not found",
			timezone:    "Mars/Olympus",
			expectedURL: "http://worldtimeapi.org/api/timezone/Mars/Olympus",
			statusCode:  404,
			status:      "404 Not Found",
			body:        body(`{"error":"unknown location"}`),
			check: func(t *testing.T, err error) {
				var statusErr *domain.UpstreamStatusError
				require.ErrorAs(t, err, &statusErr)
				require.Equal(t, 404, statusErr.StatusCode)
				require.Equal(t, "Not Found", statusErr.StatusText)
				require.NotErrorIs(t, err, domain.ErrTemporarilyUnavailable)
			},
		},
		{
			name:        "rate limited by upstream",
			timezone:    "UTC",
			expectedURL: "http://worldtimeapi.org/api/timezone/UTC",
			statusCode:  429,
			status:      "429 Too Many Requests",
			body:        body(``),
			check: func(t *testing.T, err error) {
				var statusErr *domain.UpstreamStatusError
				require.ErrorAs(t, err, &statusErr)
				require.Equal(t, "Too Many Requests", statusErr.StatusText)
				require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
			},
		},
		{
			name:        "malformed body",
			timezone:    "UTC",
			expectedURL: "http://worldtimeapi.org/api/timezone/UTC",
			statusCode:  200,
			status:      "200 OK",
			body:        body(`<html>`),
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrMalformedResponse)
			},
		},
		{
			name:        "send error",
			timezone:    "UTC",
			expectedURL: "http://worldtimeapi.org/api/timezone/UTC",
			clientErr:   assert.AnError,
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrTransport)
				require.ErrorIs(t, err, assert.AnError)
			},
		},
		{
			name:        "read error",
			timezone:    "UTC",
			expectedURL: "http://worldtimeapi.org/api/timezone/UTC",
			statusCode:  200,
			status:      "200 OK",
			body:        cantRead{},
			check: func(t *testing.T, err error) {
				require.ErrorIs(t, err, domain.ErrTransport)
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			client := &mockedHttpClient{
				t:           t,
				expectedURL: c.expectedURL,
				statusCode:  c.statusCode,
				status:      c.status,
				body:        c.body,
				err:         c.clientErr,
			}

			provider, err := timezoneprovider.NewWorldTimeAPI(client, baseURL, allowAll{})
			require.NoError(t, err)

			value, err := provider.Fetch(t.Context(), c.timezone)
			if c.check == nil {
				require.NoError(t, err)
				require.Equal(t, c.expectedValue, value)
				return
			}

			c.check(t, err)
			require.Empty(t, value)
		})
	}

	t.Run("refused by limiter", func(t *testing.T) {
		t.Parallel()

		client := &mockedHttpClient{t: t}
		provider, err := timezoneprovider.NewWorldTimeAPI(client, baseURL, denyAll{})
		require.NoError(t, err)

		_, err = provider.Fetch(t.Context(), "UTC")
		require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
	})
}

func TestWorldTimeAPIWithStore(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	nowFunc := func() time.Time { return now }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/timezone/Europe/London", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"datetime": "2024-01-01T00:00:00"}`))
	})
	mux.HandleFunc("GET /api/timezone/Broken/Body", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"datetime":`))
	})
	mux.HandleFunc("GET /api/timezone/Missing/Field", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"utc_offset":"+00:00"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	newStore := func(t *testing.T, baseURL string) *resourcestore.Store {
		t.Helper()
		provider, err := timezoneprovider.NewWorldTimeAPI(server.Client(), baseURL, allowAll{})
		require.NoError(t, err)
		return resourcestore.New(provider, resourcestore.Policy{}, nowFunc)
	}

	t.Run("reachable upstream", func(t *testing.T) {
		t.Parallel()

		store := newStore(t, server.URL+"/api/timezone")

		cases := []struct {
			timezone string
			expected domain.Entry
		}{
			{
				timezone: "Europe/London",
				expected: domain.Entry{Value: "2024-01-01T00:00:00", Status: domain.StatusReady, UpdatedAt: now},
			},
			{
				timezone: "Unknown/Zone",
				expected: domain.Entry{Value: "Not Found", Status: domain.StatusError, UpdatedAt: now},
			},
			{
				timezone: "Broken/Body",
				expected: domain.Entry{Value: resourcestore.ParseFailureMessage, Status: domain.StatusError, UpdatedAt: now},
			},
			{
				timezone: "Missing/Field",
				expected: domain.Entry{Value: resourcestore.ParseFailureMessage, Status: domain.StatusError, UpdatedAt: now},
			},
		}

		for _, c := range cases {
			store.Add(t.Context(), c.timezone)
		}
		store.Wait()

		for _, c := range cases {
			entry, ok := store.Get(c.timezone)
			require.True(t, ok, c.timezone)
			require.Equal(t, c.expected, entry, c.timezone)
		}
	})

	t.Run("unreachable upstream", func(t *testing.T) {
		t.Parallel()

		closed := httptest.NewServer(http.NotFoundHandler())
		closedURL := closed.URL
		closed.Close()

		store := newStore(t, closedURL+"/api/timezone")
		store.Add(t.Context(), "Europe/London")
		store.Wait()

		entry, ok := store.Get("Europe/London")
		require.True(t, ok)
		require.Equal(t, domain.Entry{
			Value:     resourcestore.TransportFailureMessage,
			Status:    domain.StatusError,
			UpdatedAt: now,
		}, entry)
	})
}
