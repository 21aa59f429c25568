package strutils

import (
	"fmt"
	"strings"

	"github.com/Amund211/worldclock/internal/domain"
)

const VALID_TIMEZONE_PUNCTUATION = "_+-"

const MAX_TIMEZONE_LENGTH = 128

// Trims surrounding whitespace and slashes, and checks that the result is a
// plausible IANA-style timezone name (e.g. "America/Argentina/Buenos_Aires").
//
// The result is safe to use as a path suffix: no empty, "." or ".." segments.
func NormalizeTimezone(timezone string) (string, error) {
	normalized := strings.Trim(strings.TrimSpace(timezone), "/")
	if normalized == "" {
		return "", fmt.Errorf("%w: empty timezone", domain.ErrInvalidTimezone)
	}
	if len(normalized) > MAX_TIMEZONE_LENGTH {
		return "", fmt.Errorf("%w: timezone too long. input: '%.20s...'", domain.ErrInvalidTimezone, timezone)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == "" || segment == "." || segment == ".." {
			return "", fmt.Errorf("%w: invalid segment '%s'. input: '%s'", domain.ErrInvalidTimezone, segment, timezone)
		}
		for _, char := range segment {
			if !isTimezoneRune(char) {
				return "", fmt.Errorf("%w: invalid character in timezone. input: '%s'", domain.ErrInvalidTimezone, timezone)
			}
		}
	}

	return normalized, nil
}

func isTimezoneRune(char rune) bool {
	switch {
	case 'a' <= char && char <= 'z',
		'A' <= char && char <= 'Z',
		'0' <= char && char <= '9':
		return true
	}
	return strings.ContainsRune(VALID_TIMEZONE_PUNCTUATION, char)
}
