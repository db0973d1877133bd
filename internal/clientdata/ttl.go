package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Stable data (changes a handful of times per year)
	TTLHolidays = 7 * 24 * time.Hour // 7 days - Exchange holiday lists are published well in advance

	// Daily data (new rolls appear as contracts approach expiry)
	TTLContinuousTable = 24 * time.Hour // 1 day - Continuous contract roll table
)
