package relay

import "regexp"

// MinGameIDLength and MaxGameIDLength bound a valid game ID (spec §3).
const (
	MinGameIDLength = 5
	MaxGameIDLength = 30
)

var gameIDPattern = regexp.MustCompile(`^[A-Za-z0-9./-]+$`)

// ValidGameID reports whether id is an acceptable room name: 5-30 characters
// of alphanumerics plus '-', '.', '/'. Checked before a hub is ever created
// for id, so malformed names never reach the relay engine.
func ValidGameID(id string) bool {
	if len(id) < MinGameIDLength || len(id) > MaxGameIDLength {
		return false
	}
	return gameIDPattern.MatchString(id)
}
