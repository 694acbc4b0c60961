package utils

import (
	"regexp"
	"strings"
)

// MinPasswordLength is the shortest accepted password
const MinPasswordLength = 6

var (
	emailRegex    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,30}$`)
	usernameStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidateUsername accepts 3 to 30 letters, digits, underscores or hyphens
func ValidateUsername(username string) bool {
	return usernameRegex.MatchString(username)
}

// ValidatePassword checks the minimum length
func ValidatePassword(password string) bool {
	return len(password) >= MinPasswordLength
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UsernameFromEmail derives a username candidate from the local part of an
// email. The result always satisfies ValidateUsername when a suffix of up to
// four digits is appended.
func UsernameFromEmail(email string) string {
	local, _, _ := strings.Cut(SanitizeEmail(email), "@")
	base := usernameStrip.ReplaceAllString(local, "")

	if len(base) > 26 {
		base = base[:26]
	}
	for len(base) < 3 {
		base += "_"
	}
	return base
}
