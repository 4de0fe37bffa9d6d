// Package nostr implements protocol-level event handling: wire parsing,
// canonical serialization, signatures and tag access.
package nostr

// Event kinds the aggregation engine cares about.
const (
	KindProfileMetadata  = 0
	KindTextNote         = 1
	KindContacts         = 3 // canonical follow list
	KindRepost           = 6
	KindReaction         = 7
	KindZapReceipt       = 9735
	KindLegacyPeopleList = 30000 // older list format some clients still publish
)

// EngagementKinds are the kinds the count aggregator subscribes to.
var EngagementKinds = []int{KindTextNote, KindRepost, KindReaction, KindZapReceipt}

// ActivityKinds are the extra kinds the following-scope timeline requests
// beyond plain posts.
var ActivityKinds = []int{KindRepost, KindReaction, KindZapReceipt}

// likeGlyphs are the reaction contents counted as a plain like. Anything
// else non-empty is an emoji reaction.
var likeGlyphs = map[string]bool{
	"":   true,
	"+":  true,
	"❤️": true,
	"♥️": true,
	"🤙": true,
	"👍": true,
}

// IsLikeContent reports whether reaction content counts as a like.
func IsLikeContent(content string) bool {
	return likeGlyphs[content]
}
