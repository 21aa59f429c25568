package timezoneprovider

import (
	"testing"

	"github.com/Amund211/worldclock/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestValueFromResponse(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name       string
		statusCode int
		status     string
		data       string
		field      string

		value      string
		statusText string
		temporary  bool
		malformed  bool
	}{
		{name: "string field", statusCode: 200, data: `{"datetime":"2024-01-01T00:00:00"}`, field: "datetime", value: "2024-01-01T00:00:00"},
		{name: "number field", statusCode: 200, data: `{"unixtime":1704067200}`, field: "unixtime", value: "1704067200"},
		{name: "bool field", statusCode: 200, data: `{"dst":false}`, field: "dst", value: "false"},
		{name: "object field", statusCode: 200, data: `{"o":{"a": 1}}`, field: "o", value: `{"a": 1}`},
		{name: "dotted field name is literal", statusCode: 200, data: `{"a.b":"x","a":{"b":"y"}}`, field: "a.b", value: "x"},
		{name: "escaped string", statusCode: 200, data: `{"datetime":"a\"b"}`, field: "datetime", value: `a"b`},
		{name: "204", statusCode: 204, data: `{"datetime":"x"}`, field: "datetime", value: "x"},
		{name: "missing field", statusCode: 200, data: `{"timezone":"UTC"}`, field: "datetime", malformed: true},
		{name: "null field", statusCode: 200, data: `{"datetime":null}`, field: "datetime", malformed: true},
		{name: "not an object", statusCode: 200, data: `["datetime"]`, field: "datetime", malformed: true},
		{name: "invalid json", statusCode: 200, data: `{"datetime":"x"`, field: "datetime", malformed: true},
		{name: "empty body", statusCode: 200, data: ``, field: "datetime", malformed: true},
		{name: "404", statusCode: 404, status: "404 Not Found", data: `{"datetime":"x"}`, field: "datetime", statusText: "Not Found"},
		{name: "custom reason phrase", statusCode: 404, status: "404 No Such Zone", field: "datetime", statusText: "No Such Zone"},
		{name: "missing reason phrase", statusCode: 500, status: "500", field: "datetime", statusText: "Internal Server Error"},
		{name: "empty status", statusCode: 502, status: "", field: "datetime", statusText: "Bad Gateway"},
		{name: "unknown status code", statusCode: 599, status: "", field: "datetime", statusText: "status 599"},
		{name: "429", statusCode: 429, status: "429 Too Many Requests", field: "datetime", statusText: "Too Many Requests", temporary: true},
		{name: "503", statusCode: 503, status: "503 Service Unavailable", field: "datetime", statusText: "Service Unavailable", temporary: true},
		{name: "504", statusCode: 504, status: "504 Gateway Timeout", field: "datetime", statusText: "Gateway Timeout", temporary: true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			value, err := valueFromResponse(c.statusCode, c.status, []byte(c.data), c.field)

			switch {
			case c.malformed:
				require.ErrorIs(t, err, domain.ErrMalformedResponse)
				require.Empty(t, value)
			case c.statusText != "":
				var statusErr *domain.UpstreamStatusError
				require.ErrorAs(t, err, &statusErr)
				require.Equal(t, c.statusCode, statusErr.StatusCode)
				require.Equal(t, c.statusText, statusErr.StatusText)
				if c.temporary {
					require.ErrorIs(t, err, domain.ErrTemporarilyUnavailable)
				} else {
					require.NotErrorIs(t, err, domain.ErrTemporarilyUnavailable)
				}
				require.Empty(t, value)
			default:
				require.NoError(t, err)
				require.Equal(t, c.value, value)
			}
		})
	}
}
