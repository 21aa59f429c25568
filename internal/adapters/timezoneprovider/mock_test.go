package timezoneprovider_test

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Amund211/worldclock/internal/adapters/timezoneprovider"
	"github.com/Amund211/worldclock/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestMockedTimezoneProvider(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, time.July, 1, 12, 0, 0, 0, time.UTC)
	provider := timezoneprovider.NewMockedTimezoneProvider(func() time.Time { return now })

	t.Run("known timezone", func(t *testing.T) {
		t.Parallel()

		value, err := provider.Fetch(t.Context(), "Europe/Oslo")
		require.NoError(t, err)
		require.Equal(t, "2024-07-01T14:00:00.000000+02:00", value)
	})

	t.Run("utc", func(t *testing.T) {
		t.Parallel()

		value, err := provider.Fetch(t.Context(), "UTC")
		require.NoError(t, err)
		require.Equal(t, "2024-07-01T12:00:00.000000+00:00", value)
	})

	for _, timezone := range []string{"Mars/Olympus", "", "Local"} {
		t.Run("unknown "+timezone, func(t *testing.T) {
			t.Parallel()

			_, err := provider.Fetch(t.Context(), timezone)
			var statusErr *domain.UpstreamStatusError
			require.ErrorAs(t, err, &statusErr)
			require.Equal(t, 404, statusErr.StatusCode)
			require.Equal(t, "Not Found", statusErr.StatusText)
		})
	}
}
