package config

import (
	"net/url"
	"strings"
)

const redacted = "***"

// RedactURL masks the password of a database URL so it can be logged.
// URLs without a password, sqlite paths included, come back unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}

	if _, ok := u.User.Password(); !ok {
		return raw
	}

	// Rewrite the raw text rather than u.String() so escaping elsewhere
	// in the URL is preserved.
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return raw
	}

	user, _, ok := strings.Cut(rest[:at], ":")
	if !ok {
		return raw
	}

	return scheme + "://" + user + ":" + redacted + rest[at:]
}
