package feed

import (
	"context"
	"log/slog"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

const engagementSubLimit = 500

// EngagementCounter tallies secondary engagement (replies, reposts, likes,
// emoji reactions, zaps) for a batch of posts in one subscription. The
// window is hard-bounded; whatever was tallied when it elapses is the
// answer. Counts are recomputed per call and never cached.
type EngagementCounter struct {
	sub    relay.Subscriber
	relays config.Source
	cfg    cache.Config
}

// NewEngagementCounter wires the counter.
func NewEngagementCounter(sub relay.Subscriber, relays config.Source, cfg cache.Config) *EngagementCounter {
	return &EngagementCounter{sub: sub, relays: relays, cfg: cfg}
}

// Count opens one subscription over all engagement kinds referencing any of
// postIDs and returns per-post tallies. Partial results on timeout are
// expected; every requested id gets an entry, zeroed if nothing arrived.
func (ec *EngagementCounter) Count(ctx context.Context, postIDs []string) map[string]types.EngagementCounts {
	counts := make(map[string]types.EngagementCounts, len(postIDs))
	for _, id := range postIDs {
		counts[id] = types.EngagementCounts{}
	}
	if len(postIDs) == 0 {
		return counts
	}

	winCtx, cancel := context.WithTimeout(ctx, ec.cfg.EngagementWindow)
	defer cancel()

	filter := types.Filter{
		Kinds: nostr.EngagementKinds,
		ETags: postIDs,
		Limit: engagementSubLimit,
	}
	stream, err := ec.sub.Subscribe(winCtx, ec.relays.Snapshot().Read, []types.Filter{filter})
	if err != nil {
		slog.Warn("engagement: subscribe failed", "posts", len(postIDs), "error", err)
		return counts
	}
	defer stream.Close()

	seen := make(map[string]bool)
	tallied := 0

	for {
		select {
		case <-winCtx.Done():
			slog.Debug("engagement: window elapsed", "posts", len(postIDs), "tallied", tallied)
			return counts
		case <-stream.AllEOSE():
			ec.drain(stream, counts, seen, &tallied)
			slog.Debug("engagement: complete", "posts", len(postIDs), "tallied", tallied)
			return counts
		case evt := <-stream.Events():
			if ec.tally(&evt, counts, seen) {
				tallied++
			}
		}
	}
}

func (ec *EngagementCounter) drain(stream *relay.Stream, counts map[string]types.EngagementCounts, seen map[string]bool, tallied *int) {
	for {
		select {
		case evt := <-stream.Events():
			if ec.tally(&evt, counts, seen) {
				*tallied++
			}
		default:
			return
		}
	}
}

// tally attributes one engagement event to its direct target, the last
// e tag. Events for posts outside the batch or duplicates across relays
// are ignored.
func (ec *EngagementCounter) tally(evt *types.Event, counts map[string]types.EngagementCounts, seen map[string]bool) bool {
	if seen[evt.ID] {
		return false
	}
	target := nostr.GetLastTagValue(evt.Tags, "e")
	c, ok := counts[target]
	if !ok {
		return false
	}
	seen[evt.ID] = true

	switch evt.Kind {
	case nostr.KindTextNote:
		c.Replies++
	case nostr.KindRepost:
		c.Reposts++
	case nostr.KindReaction:
		if nostr.IsLikeContent(evt.Content) {
			c.Likes++
		} else {
			c.Emoji++
		}
	case nostr.KindZapReceipt:
		c.Zaps++
		c.ZapSats += DecodeZapAmountSats(evt)
	default:
		return false
	}

	counts[target] = c
	return true
}
