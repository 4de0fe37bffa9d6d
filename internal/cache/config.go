package cache

import "time"

// Config holds cache TTL configuration
type Config struct {
	ProfileTTL         time.Duration
	ProfileNotFoundTTL time.Duration
	FollowSetTTL       time.Duration
	// EngagementWindow bounds how long the count aggregator waits; counts
	// themselves are never persisted.
	EngagementWindow time.Duration
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ProfileTTL:         15 * time.Minute,
		ProfileNotFoundTTL: 30 * time.Second, // short TTL lets a relay outage retry soon
		FollowSetTTL:       5 * time.Minute,
		EngagementWindow:   3 * time.Second,
	}
}
