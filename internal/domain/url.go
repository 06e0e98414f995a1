package domain

import (
	"fmt"
	"net/url"
	"strings"
)

const defaultScheme = "https://"

// NormalizeURL trims raw, prefixes https:// when it carries no http(s)
// scheme and checks that the result is an absolute URL with a host.
// Examples:
//   - "example.com"          -> "https://example.com"
//   - " http://a.test/x "    -> "http://a.test/x"
//   - ""                     -> ErrInvalidURL
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}

	if !hasHTTPScheme(s) {
		s = defaultScheme + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidURL, raw)
	}
	if strings.ContainsAny(u.Host, " \t") {
		return "", fmt.Errorf("%w: %q has an invalid host", ErrInvalidURL, raw)
	}

	return s, nil
}

// NormalizeTitle trims title and falls back to the normalized url.
func NormalizeTitle(title, normalizedURL string) string {
	if t := strings.TrimSpace(title); t != "" {
		return t
	}
	return normalizedURL
}

func hasHTTPScheme(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
