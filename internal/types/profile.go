package types

// Profile contains user display metadata derived from the latest kind 0 event
type Profile struct {
	PubKey      string `json:"pubkey"`
	DisplayName string `json:"display_name,omitempty"`
	Handle      string `json:"handle,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	Bio         string `json:"bio,omitempty"`

	// Placeholder is set when no metadata event was found and the profile
	// was synthesized from the pubkey alone.
	Placeholder bool `json:"placeholder,omitempty"`
}

// FollowSet is the resolved follow list for one pubkey
type FollowSet struct {
	OwnerPubKey string   `json:"owner_pubkey"`
	Members     []string `json:"members"`
	SourceKind  int      `json:"source_kind"`
	FetchedAt   int64    `json:"fetched_at"`
}

// Contains reports whether the set includes the given pubkey.
func (fs *FollowSet) Contains(pubkey string) bool {
	for _, m := range fs.Members {
		if m == pubkey {
			return true
		}
	}
	return false
}
