package service

import "time"

// dailyEligibility decides whether a daily claim is allowed at now.
// A nil lastClaim means the user never claimed. Both times are compared in
// UTC. Zone-less legacy columns are migrated to timestamptz as UTC, and pgx
// scans any remaining zone-less timestamp as a UTC wall clock, so .UTC() is
// enough here. When blocked, the remaining duration is always positive.
func dailyEligibility(lastClaim *time.Time, now time.Time, cooldown time.Duration) (bool, time.Duration) {
	if lastClaim == nil || lastClaim.IsZero() {
		return true, 0
	}

	elapsed := now.UTC().Sub(lastClaim.UTC())
	if elapsed >= cooldown {
		return true, 0
	}

	return false, cooldown - elapsed
}
