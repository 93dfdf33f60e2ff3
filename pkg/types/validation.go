package types

import (
	"regexp"
)

// Usernames exclude the hyphen so that a direct-message room id of the
// form dm:alice-bob decomposes unambiguously into its two participants.
var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// IsValidUsername checks if a username meets format requirements.
// 2-32 characters, alphanumeric plus underscore.
func IsValidUsername(name string) bool {
	if len(name) < 2 || len(name) > 32 {
		return false
	}
	return usernameRegex.MatchString(name)
}
