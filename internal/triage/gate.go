package triage

import "time"

// DefaultMinAge is how old a PR must be before it is processed.
const DefaultMinAge = 10 * time.Minute

// IsMature reports whether a PR created at createdAt has reached minAge at now.
// A PR exactly minAge old is mature.
func IsMature(createdAt, now time.Time, minAge time.Duration) bool {
	return now.Sub(createdAt) >= minAge
}

// elapsedMinutes is the whole number of minutes since createdAt.
func elapsedMinutes(createdAt, now time.Time) int {
	return int(now.Sub(createdAt) / time.Minute)
}
