package timezoneprovider

import (
	"context"
	"net/http"
	"time"

	"github.com/Amund211/worldclock/internal/domain"
)

// Same layout as the datetime field of worldtimeapi.org
const worldTimeAPIDatetimeLayout = "2006-01-02T15:04:05.000000-07:00"

type mockedTimezoneProvider struct {
	nowFunc func() time.Time
}

// Answers from the local timezone database instead of the network
func NewMockedTimezoneProvider(nowFunc func() time.Time) TimezoneProvider {
	return &mockedTimezoneProvider{nowFunc: nowFunc}
}

func (m *mockedTimezoneProvider) Fetch(ctx context.Context, timezone string) (string, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil || timezone == "" || timezone == "Local" {
		return "", &domain.UpstreamStatusError{
			StatusCode: http.StatusNotFound,
			StatusText: http.StatusText(http.StatusNotFound),
		}
	}
	return m.nowFunc().In(location).Format(worldTimeAPIDatetimeLayout), nil
}
