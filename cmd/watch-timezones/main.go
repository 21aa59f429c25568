package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"
	_ "time/tzdata"

	"github.com/Amund211/worldclock/internal/adapters/timezoneprovider"
	"github.com/Amund211/worldclock/internal/app"
	"github.com/Amund211/worldclock/internal/domain"
	"github.com/Amund211/worldclock/internal/logging"
	"github.com/Amund211/worldclock/internal/ratelimiting"
	"github.com/Amund211/worldclock/internal/resourcestore"
	"github.com/alecthomas/kong"
	"github.com/dustin/go-humanize"
	_ "golang.org/x/crypto/x509roots/fallback"
)

var version = "dev"

type CLI struct {
	Version kong.VersionFlag `help:"Show version." short:"V"`

	Timezones []string      `arg:"" help:"Timezones to track, e.g. Europe/Oslo."`
	BaseURL   string        `name:"base-url" help:"Base URL of the timezone API." default:"${base_url}"`
	Mock      bool          `help:"Compute datetimes locally instead of asking the API."`
	Watch     time.Duration `help:"Refresh every timezone on this interval until interrupted. Zero prints once." default:"0s"`
	Timeout   time.Duration `help:"Deadline for each fetch." default:"10s"`
	Latest    bool          `help:"Keep the outcome of the latest refresh instead of the last one to finish."`
	Verbose   bool          `help:"Log store activity to stderr." short:"v"`
}

func (c *CLI) newProvider() (timezoneprovider.TimezoneProvider, error) {
	if c.Mock {
		return timezoneprovider.NewMockedTimezoneProvider(time.Now), nil
	}

	httpClient := &http.Client{Timeout: c.Timeout}
	limiter := ratelimiting.NewOperationLimiter(60, time.Minute, 10, time.Now, time.After)
	return timezoneprovider.NewWorldTimeAPI(httpClient, c.BaseURL, limiter)
}

func (c *CLI) run(ctx context.Context, out io.Writer) error {
	provider, err := c.newProvider()
	if err != nil {
		return fmt.Errorf("failed to create timezone provider: %w", err)
	}

	policy := resourcestore.Policy{FetchTimeout: c.Timeout}
	if c.Latest {
		policy.Ordering = resourcestore.LatestRefreshWins
	}
	store := resourcestore.New(provider, policy, time.Now)

	add := app.BuildAddTimezone(store)
	refresh := app.BuildRefreshTimezone(store)
	list := app.BuildListTimezones(store)

	for _, err := range app.SeedTimezones(ctx, add, c.Timezones) {
		fmt.Fprintf(out, "skipping: %s\n", err)
	}
	if len(store.Keys()) == 0 {
		return fmt.Errorf("no valid timezones given")
	}

	store.Wait()
	if err := render(out, list(ctx), time.Now()); err != nil {
		return err
	}

	if c.Watch <= 0 {
		return nil
	}

	ticker := time.NewTicker(c.Watch)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			store.Wait()
			return nil
		case <-ticker.C:
		}

		for _, timezone := range store.Keys() {
			if _, err := refresh(ctx, timezone); err != nil {
				return fmt.Errorf("failed to refresh %s: %w", timezone, err)
			}
		}
		store.Wait()

		fmt.Fprintln(out)
		if err := render(out, list(ctx), time.Now()); err != nil {
			return err
		}
	}
}

func render(out io.Writer, timezones []domain.TrackedTimezone, now time.Time) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TIMEZONE\tSTATUS\tVALUE\tUPDATED")
	for _, timezone := range timezones {
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\n",
			timezone.Timezone,
			timezone.Status,
			timezone.Value,
			humanize.RelTime(timezone.UpdatedAt, now, "ago", "from now"),
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func main() {
	var cli CLI
	kong.Parse(
		&cli,
		kong.Description("Fetch the current datetime of timezones and print their state."),
		kong.Vars{
			"version":  version,
			"base_url": timezoneprovider.DefaultBaseURL,
		},
	)

	level := slog.LevelWarn
	if cli.Verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logging.AddToContext(ctx, logger)

	if err := cli.run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
