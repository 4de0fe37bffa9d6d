package types

// CachedProfile wraps profile data for serialization
type CachedProfile struct {
	Profile *Profile `json:"profile,omitempty"`
	// EventCreatedAt is the created_at of the metadata event the profile was
	// built from. Zero for placeholders. Used to reject stale overwrites.
	EventCreatedAt int64 `json:"event_created_at"`
	FetchedAt      int64 `json:"fetched_at"`
	NotFound       bool  `json:"not_found"`
}

// CachedFollowSet wraps a resolved follow set for serialization
type CachedFollowSet struct {
	FollowSet      *FollowSet `json:"follow_set,omitempty"`
	EventCreatedAt int64      `json:"event_created_at"`
	FetchedAt      int64      `json:"fetched_at"`
}
