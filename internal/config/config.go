package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Amund211/worldclock/internal/strutils"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

const defaultPort = "8123"

type Config struct {
	sentryDSN            string
	port                 string
	allowedOrigins       []string
	timezones            []string
	fetchTimeout         time.Duration
	mockUpstream         bool
	latestRefreshWins    bool
	resurrectDeletedKeys bool
	otelEnabled          bool
	googleCloudProject   string
	logLevel             slog.Level
	env                  environment
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) Port() string {
	return c.port
}

// Domain suffixes allowed to make cross-origin requests
func (c *Config) AllowedOrigins() []string {
	return c.allowedOrigins
}

// Timezones to start tracking at startup
func (c *Config) Timezones() []string {
	return c.timezones
}

// Zero means no timeout beyond the http client's own
func (c *Config) FetchTimeout() time.Duration {
	return c.fetchTimeout
}

func (c *Config) MockUpstream() bool {
	return c.mockUpstream
}

func (c *Config) LatestRefreshWins() bool {
	return c.latestRefreshWins
}

func (c *Config) ResurrectDeletedKeys() bool {
	return c.resurrectDeletedKeys
}

func (c *Config) OTELEnabled() bool {
	return c.otelEnabled
}

func (c *Config) GoogleCloudProject() string {
	return c.googleCloudProject
}

func (c *Config) LogLevel() slog.Level {
	return c.logLevel
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf(
		"Config{env: %s, logLevel: %s, port: %s, timezones: %d, mockUpstream: %t, latestRefreshWins: %t, resurrectDeletedKeys: %t, ...}",
		string(c.env),
		c.logLevel.String(),
		c.port,
		len(c.timezones),
		c.mockUpstream,
		c.latestRefreshWins,
		c.resurrectDeletedKeys,
	)
}

func splitList(raw string) []string {
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}
	invalidValue := func(key, value string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, value)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("WORLDCLOCK_ENVIRONMENT")
	if !ok {
		return missingKey("WORLDCLOCK_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return invalidValue("WORLDCLOCK_ENVIRONMENT", rawEnv)
	}
	if string(env) == "" {
		panic("logic error: env is empty")
	}

	sentryDSN := os.Getenv("SENTRY_DSN")
	googleCloudProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	allowedOrigins := splitList(os.Getenv("WORLDCLOCK_ALLOWED_ORIGINS"))

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return invalidValue("PORT", port)
	}

	timezones := []string{}
	for _, raw := range splitList(os.Getenv("WORLDCLOCK_TIMEZONES")) {
		timezone, err := strutils.NormalizeTimezone(raw)
		if err != nil {
			return invalidValue("WORLDCLOCK_TIMEZONES", raw)
		}
		timezones = append(timezones, timezone)
	}

	var fetchTimeout time.Duration
	if rawTimeout := os.Getenv("WORLDCLOCK_FETCH_TIMEOUT"); rawTimeout != "" {
		parsed, err := time.ParseDuration(rawTimeout)
		if err != nil || parsed < 0 {
			return invalidValue("WORLDCLOCK_FETCH_TIMEOUT", rawTimeout)
		}
		fetchTimeout = parsed
	}

	var latestRefreshWins bool
	switch rawOrdering := os.Getenv("WORLDCLOCK_ORDERING"); rawOrdering {
	case "", "last-commit":
		latestRefreshWins = false
	case "latest-refresh":
		latestRefreshWins = true
	default:
		return invalidValue("WORLDCLOCK_ORDERING", rawOrdering)
	}

	var resurrectDeletedKeys bool
	switch rawDeletedKeys := os.Getenv("WORLDCLOCK_DELETED_KEYS"); rawDeletedKeys {
	case "", "discard":
		resurrectDeletedKeys = false
	case "resurrect":
		resurrectDeletedKeys = true
	default:
		return invalidValue("WORLDCLOCK_DELETED_KEYS", rawDeletedKeys)
	}

	logLevel := slog.LevelInfo
	if rawLogLevel := os.Getenv("WORLDCLOCK_LOG_LEVEL"); rawLogLevel != "" {
		if err := logLevel.UnmarshalText([]byte(rawLogLevel)); err != nil {
			return invalidValue("WORLDCLOCK_LOG_LEVEL", rawLogLevel)
		}
	}

	parseBool := func(key string) (bool, error) {
		raw := os.Getenv(key)
		if raw == "" {
			return false, nil
		}
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("%w: %s (%s)", ErrInvalidValue, key, raw)
		}
		return value, nil
	}

	mockUpstream, err := parseBool("WORLDCLOCK_MOCK_UPSTREAM")
	if err != nil {
		return Config{}, err
	}
	otelEnabled, err := parseBool("OTEL_ENABLED")
	if err != nil {
		return Config{}, err
	}

	if env == production || env == staging {
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
		if mockUpstream {
			return Config{}, fmt.Errorf("%w: WORLDCLOCK_MOCK_UPSTREAM is only allowed in development", ErrInvalidValue)
		}
	}

	return Config{
		sentryDSN:            sentryDSN,
		port:                 port,
		allowedOrigins:       allowedOrigins,
		timezones:            timezones,
		fetchTimeout:         fetchTimeout,
		mockUpstream:         mockUpstream,
		latestRefreshWins:    latestRefreshWins,
		resurrectDeletedKeys: resurrectDeletedKeys,
		otelEnabled:          otelEnabled,
		googleCloudProject:   googleCloudProject,
		logLevel:             logLevel,
		env:                  env,
	}, nil
}
