package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/Amund211/worldclock/internal/config"
	"github.com/stretchr/testify/require"
)

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

var allVariables = []string{
	"WORLDCLOCK_ENVIRONMENT",
	"SENTRY_DSN",
	"PORT",
	"WORLDCLOCK_ALLOWED_ORIGINS",
	"WORLDCLOCK_TIMEZONES",
	"WORLDCLOCK_FETCH_TIMEOUT",
	"WORLDCLOCK_MOCK_UPSTREAM",
	"WORLDCLOCK_ORDERING",
	"WORLDCLOCK_DELETED_KEYS",
	"OTEL_ENABLED",
	"GOOGLE_CLOUD_PROJECT",
	"WORLDCLOCK_LOG_LEVEL",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, variable := range allVariables {
		t.Setenv(variable, "")
	}
}

func TestGetConfig(t *testing.T) {
	t.Run("environment is missing", func(t *testing.T) {
		// WORLDCLOCK_ENVIRONMENT is required, so this should fail
		_, err := config.ConfigFromEnv()
		require.ErrorIs(t, err, config.ErrMissingRequiredValue)
	})

	t.Run("development defaults", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("WORLDCLOCK_ENVIRONMENT", "development")

		conf, err := config.ConfigFromEnv()
		require.NoError(t, err)
		require.True(t, conf.IsDevelopment())
		require.False(t, conf.IsProduction())
		require.False(t, conf.IsStaging())
		require.Equal(t, "", conf.SentryDSN())
		require.Equal(t, "8123", conf.Port())
		require.Empty(t, conf.AllowedOrigins())
		require.Empty(t, conf.Timezones())
		require.Equal(t, time.Duration(0), conf.FetchTimeout())
		require.False(t, conf.MockUpstream())
		require.False(t, conf.LatestRefreshWins())
		require.False(t, conf.ResurrectDeletedKeys())
		require.False(t, conf.OTELEnabled())
		require.Equal(t, "", conf.GoogleCloudProject())
		require.Equal(t, slog.LevelInfo, conf.LogLevel())
	})

	t.Run("values are read correctly", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SENTRY_DSN", "SENTRY_DSN")
		t.Setenv("PORT", "9000")
		t.Setenv("WORLDCLOCK_ALLOWED_ORIGINS", "example.com, test.com,")
		t.Setenv("WORLDCLOCK_TIMEZONES", "Europe/Oslo, /Asia/Tokyo/")
		t.Setenv("WORLDCLOCK_FETCH_TIMEOUT", "3s")
		t.Setenv("WORLDCLOCK_ORDERING", "latest-refresh")
		t.Setenv("WORLDCLOCK_DELETED_KEYS", "resurrect")
		t.Setenv("OTEL_ENABLED", "true")
		t.Setenv("GOOGLE_CLOUD_PROJECT", "my-project")
		t.Setenv("WORLDCLOCK_LOG_LEVEL", "debug")

		for _, env := range []environment{production, staging, development} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("WORLDCLOCK_ENVIRONMENT", string(env))

				conf, err := config.ConfigFromEnv()
				require.NoError(t, err)
				require.Equal(t, env == production, conf.IsProduction())
				require.Equal(t, env == staging, conf.IsStaging())
				require.Equal(t, env == development, conf.IsDevelopment())
				require.Equal(t, "SENTRY_DSN", conf.SentryDSN())
				require.Equal(t, "9000", conf.Port())
				require.Equal(t, []string{"example.com", "test.com"}, conf.AllowedOrigins())
				require.Equal(t, []string{"Europe/Oslo", "Asia/Tokyo"}, conf.Timezones())
				require.Equal(t, 3*time.Second, conf.FetchTimeout())
				require.True(t, conf.LatestRefreshWins())
				require.True(t, conf.ResurrectDeletedKeys())
				require.True(t, conf.OTELEnabled())
				require.Equal(t, "my-project", conf.GoogleCloudProject())
				require.Equal(t, slog.LevelDebug, conf.LogLevel())
				require.NotContains(t, conf.NonSensitiveString(), "SENTRY_DSN")
			})
		}
	})

	t.Run("production and staging fail when missing sentry dsn", func(t *testing.T) {
		clearEnv(t)

		for _, env := range []environment{production, staging} {
			t.Run(string(env), func(t *testing.T) {
				t.Setenv("WORLDCLOCK_ENVIRONMENT", string(env))

				_, err := config.ConfigFromEnv()
				require.ErrorIs(t, err, config.ErrMissingRequiredValue)
			})
		}
	})

	t.Run("mock upstream only in development", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("SENTRY_DSN", "SENTRY_DSN")
		t.Setenv("WORLDCLOCK_MOCK_UPSTREAM", "true")

		t.Setenv("WORLDCLOCK_ENVIRONMENT", "production")
		_, err := config.ConfigFromEnv()
		require.ErrorIs(t, err, config.ErrInvalidValue)

		t.Setenv("WORLDCLOCK_ENVIRONMENT", "development")
		conf, err := config.ConfigFromEnv()
		require.NoError(t, err)
		require.True(t, conf.MockUpstream())
	})

	t.Run("invalid values", func(t *testing.T) {
		cases := []struct {
			variable string
			value    string
		}{
			{variable: "WORLDCLOCK_ENVIRONMENT", value: ""},
			{variable: "WORLDCLOCK_ENVIRONMENT", value: "invalid"},
			{variable: "WORLDCLOCK_ENVIRONMENT", value: "my-env"},
			{variable: "PORT", value: "http"},
			{variable: "PORT", value: "70000"},
			{variable: "WORLDCLOCK_TIMEZONES", value: "Europe/Oslo,../etc"},
			{variable: "WORLDCLOCK_FETCH_TIMEOUT", value: "soon"},
			{variable: "WORLDCLOCK_FETCH_TIMEOUT", value: "-1s"},
			{variable: "WORLDCLOCK_ORDERING", value: "first-commit"},
			{variable: "WORLDCLOCK_DELETED_KEYS", value: "keep"},
			{variable: "WORLDCLOCK_MOCK_UPSTREAM", value: "maybe"},
			{variable: "OTEL_ENABLED", value: "yes please"},
			{variable: "WORLDCLOCK_LOG_LEVEL", value: "loud"},
		}
		for _, c := range cases {
			t.Run(c.variable+"="+c.value, func(t *testing.T) {
				clearEnv(t)
				t.Setenv("WORLDCLOCK_ENVIRONMENT", "development")
				t.Setenv(c.variable, c.value)

				_, err := config.ConfigFromEnv()
				require.ErrorIs(t, err, config.ErrInvalidValue)
			})
		}
	})
}
