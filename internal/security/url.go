package security

import (
	"fmt"
	"net/url"
	"strings"
)

// parseRequestURL parses urlStr and rejects obviously malformed input early.
func parseRequestURL(urlStr string) (*url.URL, error) {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	return parsed, nil
}

// IsURLSafe quickly checks a URL for obvious dangerous patterns.
// An additional cheap layer before ValidateURL; never sufficient alone.
func IsURLSafe(urlStr string) bool {
	urlLower := strings.ToLower(urlStr)

	dangerousSchemes := []string{
		"file://",
		"ftp://",
		"gopher://",
		"data:",
		"javascript:",
	}
	for _, scheme := range dangerousSchemes {
		if strings.HasPrefix(urlLower, scheme) {
			return false
		}
	}

	dangerousPatterns := []string{
		"localhost",
		"127.0.0.1",
		"0.0.0.0",
		"169.254.169.254",
		"metadata",
	}
	for _, pattern := range dangerousPatterns {
		if strings.Contains(urlLower, pattern) {
			return false
		}
	}

	return true
}
