package types

// ActivityType classifies why a post was surfaced in a feed.
type ActivityType string

const (
	ActivityReply  ActivityType = "reply"
	ActivityRepost ActivityType = "repost"
	ActivityLike   ActivityType = "like"
	ActivityEmoji  ActivityType = "emoji"
	ActivityZap    ActivityType = "zap"
)

// Activity describes the secondary event that surfaced a post: someone the
// viewer follows reposted, liked, replied to or zapped it.
type Activity struct {
	Type          ActivityType `json:"type"`
	ActorProfile  *Profile     `json:"actor_profile,omitempty"`
	ActorPubKey   string       `json:"actor_pubkey"`
	SourceEventID string       `json:"source_event_id"`
	TargetPostID  string       `json:"target_post_id"`
	CreatedAt     int64        `json:"created_at"`
	AmountSats    int64        `json:"amount_sats,omitempty"`
	Emoji         string       `json:"emoji,omitempty"`
	Message       string       `json:"message,omitempty"`
}

// FeedEntry is the unit the timeline engine emits. It is always anchored to
// one post and optionally carries the Activity that surfaced it.
type FeedEntry struct {
	TargetPost    Event            `json:"target_post"`
	AuthorProfile *Profile         `json:"author_profile,omitempty"`
	Activity      *Activity        `json:"activity,omitempty"`
	Counts        EngagementCounts `json:"counts"`
}

// DedupKey identifies an entry within one aggregation pass: the activity
// source event when present, else the post itself.
func (e *FeedEntry) DedupKey() string {
	if e.Activity != nil {
		return e.Activity.SourceEventID
	}
	return e.TargetPost.ID
}

// DisplayedAt is the timestamp the feed orders by: the activity's when
// present, else the post's own.
func (e *FeedEntry) DisplayedAt() int64 {
	if e.Activity != nil {
		return e.Activity.CreatedAt
	}
	return e.TargetPost.CreatedAt
}

// EngagementCounts holds tallied secondary engagement for one post.
type EngagementCounts struct {
	Likes   int   `json:"likes"`
	Reposts int   `json:"reposts"`
	Replies int   `json:"replies"`
	Zaps    int   `json:"zaps"`
	ZapSats int64 `json:"zap_sats"`
	Emoji   int   `json:"emoji"`
}

// FeedScope selects which filter set the timeline engine builds.
type FeedScope string

const (
	// ScopeFollowing restricts authors to the viewer's follow set and
	// additionally requests activity kinds (reposts, reactions, zaps).
	ScopeFollowing FeedScope = "following"
	// ScopeGlobal requests posts and reposts from anyone.
	ScopeGlobal FeedScope = "global"
)

// FeedResult is one bounded timeline page.
type FeedResult struct {
	Entries    []FeedEntry `json:"entries"`
	NextCursor int64       `json:"next_cursor"`
	HasMore    bool        `json:"has_more"`
}
