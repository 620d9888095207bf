package utils

import "regexp"

// API keys and tokens encode as long unbroken runs of base64url-ish
// characters. Anything 20 chars or longer is treated as a potential secret.
var secretPattern = regexp.MustCompile(`[A-Za-z0-9_-]{20,}`)

// Redact replaces likely secrets in a message with a placeholder. Every
// message that crosses the logging or user-display boundary after an
// unexpected failure goes through here first.
func Redact(s string) string {
	if s == "" {
		return "Unknown error"
	}
	return secretPattern.ReplaceAllString(s, "***")
}
