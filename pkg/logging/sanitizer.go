package logging

import (
	"regexp"
)

const (
	// MaxTextLogLength is the maximum length of user search text or a
	// statement digest text to log
	MaxTextLogLength = 100
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// Pattern to match download tokens embedded in URLs or error text
	tokenPattern = regexp.MustCompile(`(?i)(token)=[A-Za-z0-9_.~-]+`)

	// Pattern to match bearer credentials forwarded to the dashboard API
	bearerPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9_.~-]+`)
)

// SanitizeURL removes one-use download tokens and credentials from a URL
// before logging it.
func SanitizeURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	return tokenPattern.ReplaceAllString(rawURL, "${1}="+RedactedText)
}

// SanitizeError sanitizes error messages that might contain tokens or
// credentials. Use this before logging any error from remote calls.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := tokenPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	return sanitized
}

// TruncateText shortens user search text or digest text for logging.
func TruncateText(text string) string {
	if len(text) <= MaxTextLogLength {
		return text
	}
	return text[:MaxTextLogLength] + "..."
}
