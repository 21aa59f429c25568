package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/Amund211/worldclock/internal/adapters/timezoneprovider"
	"github.com/Amund211/worldclock/internal/app"
	"github.com/Amund211/worldclock/internal/config"
	"github.com/Amund211/worldclock/internal/logging"
	"github.com/Amund211/worldclock/internal/ports"
	"github.com/Amund211/worldclock/internal/ratelimiting"
	"github.com/Amund211/worldclock/internal/reporting"
	"github.com/Amund211/worldclock/internal/resourcestore"
	"github.com/Amund211/worldclock/internal/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	_ "golang.org/x/crypto/x509roots/fallback"
)

const shutdownTimeout = 15 * time.Second

func main() {
	instanceID := uuid.New().String()

	config, err := config.ConfigFromEnv()
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stdout, nil)).Error("Failed to load config", "error", err.Error())
		os.Exit(1)
	}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel()})
	if config.GoogleCloudProject() != "" {
		handler = logging.NewCloudTraceLogHandler(handler, config.GoogleCloudProject())
	}
	logger := slog.New(handler).With("instanceID", instanceID)

	fail := func(msg string, args ...any) {
		logger.Error(msg, args...)
		os.Exit(1)
	}

	logger.Info("Loaded config", "config", config.NonSensitiveString())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = logging.AddToContext(ctx, logger)

	if config.OTELEnabled() {
		shutdownOTel, err := telemetry.SetupOTelSDK(ctx, "worldclock")
		if err != nil {
			fail("Failed to set up OpenTelemetry", "error", err.Error())
		}
		defer func() {
			if err := shutdownOTel(context.Background()); err != nil {
				logger.Error("Failed to shut down OpenTelemetry", "error", err.Error())
			}
		}()
		logger.Info("Initialized OpenTelemetry")
	}

	sentryMiddleware, flush, err := reporting.NewSentryMiddlewareOrMock(config)
	if err != nil {
		fail("Failed to initialize Sentry", "error", err.Error())
	}
	defer flush()
	logger.Info("Initialized Sentry middleware")

	httpClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	provider, err := timezoneprovider.NewWorldTimeAPIOrMock(config, httpClient, time.Now, time.After)
	if err != nil {
		fail("Failed to initialize timezone provider", "error", err.Error())
	}
	logger.Info("Initialized timezone provider", "mocked", config.MockUpstream())

	policy := resourcestore.Policy{
		Ordering:     resourcestore.LastCommitWins,
		DeletedKeys:  resourcestore.DiscardDeleted,
		FetchTimeout: config.FetchTimeout(),
	}
	if config.LatestRefreshWins() {
		policy.Ordering = resourcestore.LatestRefreshWins
	}
	if config.ResurrectDeletedKeys() {
		policy.DeletedKeys = resourcestore.ResurrectDeleted
	}
	store := resourcestore.New(provider, policy, time.Now)

	// Every state transition at debug level, enable with WORLDCLOCK_LOG_LEVEL=debug
	unsubscribe := store.Subscribe(resourcestore.NewChangeLogger(logger.With("component", "resourcestore")))
	defer unsubscribe()

	listTimezones := app.BuildListTimezones(store)
	getTimezone := app.BuildGetTimezone(store)
	addTimezone := app.BuildAddTimezone(store)
	refreshTimezone := app.BuildRefreshTimezone(store)
	removeTimezone := app.BuildRemoveTimezone(store)

	for _, err := range app.SeedTimezones(ctx, addTimezone, config.Timezones()) {
		logger.Warn("Skipped seeding timezone", "error", err.Error())
	}
	logger.Info("Seeded timezones", "count", len(store.Keys()))

	allowedOrigins, err := ports.NewDomainSuffixes(config.AllowedOrigins()...)
	if err != nil {
		fail("Failed to initialize allowed origins", "error", err.Error())
	}

	ipLimiter, stopIPLimiter := ratelimiting.NewTokenBucketRateLimiter(
		ratelimiting.RefillPerSecond(4),
		ratelimiting.BurstSize(240),
	)
	defer stopIPLimiter()
	ipRateLimiter := ratelimiting.NewRequestBasedRateLimiter(ipLimiter, ratelimiting.IPKeyFunc)

	mux := http.NewServeMux()

	mux.HandleFunc(
		"OPTIONS /v1/",
		ports.BuildCORSHandler(allowedOrigins),
	)
	mux.HandleFunc(
		"GET /v1/timezones",
		ports.MakeListTimezonesHandler(
			listTimezones,
			allowedOrigins,
			ipRateLimiter,
			logger.With("port", "listtimezones"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"GET /v1/timezones/{timezone...}",
		ports.MakeGetTimezoneHandler(
			getTimezone,
			allowedOrigins,
			ipRateLimiter,
			logger.With("port", "gettimezone"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"PUT /v1/timezones/{timezone...}",
		ports.MakeAddTimezoneHandler(
			addTimezone,
			allowedOrigins,
			ipRateLimiter,
			logger.With("port", "addtimezone"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"DELETE /v1/timezones/{timezone...}",
		ports.MakeRemoveTimezoneHandler(
			removeTimezone,
			allowedOrigins,
			ipRateLimiter,
			logger.With("port", "removetimezone"),
			sentryMiddleware,
		),
	)
	mux.HandleFunc(
		"POST /v1/refresh/{timezone...}",
		ports.MakeRefreshTimezoneHandler(
			refreshTimezone,
			allowedOrigins,
			ipRateLimiter,
			logger.With("port", "refreshtimezone"),
			sentryMiddleware,
		),
	)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", config.Port()),
		Handler:           otelhttp.NewHandler(mux, "worldclock"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	logger.Info("Init complete", "port", config.Port())

	select {
	case err := <-serverErr:
		if !errors.Is(err, http.ErrServerClosed) {
			fail("Server error", "error", err.Error())
		}
	case <-ctx.Done():
		logger.Info("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to shut down server", "error", err.Error())
	}

	// Let refreshes launched by requests commit before exiting
	drained := make(chan struct{})
	go func() {
		store.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info("Server shutdown")
	case <-shutdownCtx.Done():
		logger.Warn("Gave up waiting for refreshes", "keys", len(store.Keys()))
	}
}
