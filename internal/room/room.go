package room

import (
	"sort"
	"strings"

	"parlor/pkg/types"
)

// DirectPrefix reserves an identifier space for direct-message rooms so
// they can never collide with operator-defined channel names (channel
// names cannot contain ':').
const DirectPrefix = "dm:"

// CanonicalDirectRoom computes the room identifier for a direct-message
// pair. The two names are sorted lexicographically, so both
// participants compute the same identifier regardless of who initiates.
func CanonicalDirectRoom(a, b string) string {
	names := []string{a, b}
	sort.Strings(names)
	return DirectPrefix + names[0] + "-" + names[1]
}

// IsDirect reports whether a room identifier names a direct-message pair.
func IsDirect(roomID string) bool {
	return strings.HasPrefix(roomID, DirectPrefix)
}

// DirectParticipants decomposes a direct-message room identifier into
// its two participant names. The username charset excludes '-', so the
// split is unambiguous. Returns ok=false for malformed identifiers.
func DirectParticipants(roomID string) (string, string, bool) {
	if !IsDirect(roomID) {
		return "", "", false
	}
	pair := strings.TrimPrefix(roomID, DirectPrefix)
	parts := strings.Split(pair, "-")
	if len(parts) != 2 {
		return "", "", false
	}
	a, b := parts[0], parts[1]
	if !types.IsValidUsername(a) || !types.IsValidUsername(b) {
		return "", "", false
	}
	if CanonicalDirectRoom(a, b) != roomID {
		return "", "", false
	}
	return a, b, true
}
