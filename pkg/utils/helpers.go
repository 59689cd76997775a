package utils

import (
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// GenerateRequestID generates a unique request ID for tracking
func GenerateRequestID() string {
	return uuid.New().String()
}

// FormatDuration formats a duration to a human-readable string
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.String()
	}
	if d < time.Minute {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d < time.Hour {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	return fmt.Sprintf("%.1fh", d.Hours())
}

// GetStringOrDefault returns the value if not empty, otherwise returns the default
func GetStringOrDefault(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

// SanitizeQueryParams returns a copy of params with empty-valued entries removed,
// so blank filters never reach the target site
func SanitizeQueryParams(params url.Values) url.Values {
	clean := url.Values{}
	for key, vals := range params {
		for _, v := range vals {
			if v == "" {
				continue
			}
			clean.Add(key, v)
		}
	}
	return clean
}

// BuildRequestURL merges the sanitized params into the target URL's existing
// query string. Params win over duplicated keys already on the target.
func BuildRequestURL(target string, params url.Values) (string, error) {
	parsed, err := url.Parse(target)
	if err != nil {
		return "", err
	}

	query := parsed.Query()
	for key, values := range SanitizeQueryParams(params) {
		query[key] = values
	}
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}
