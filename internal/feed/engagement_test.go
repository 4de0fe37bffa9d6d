package feed

import (
	"context"
	"testing"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

func newCounterFixture(sub *fakeSubscriber) *EngagementCounter {
	cfg := cache.DefaultConfig()
	cfg.EngagementWindow = 500 * time.Millisecond
	return NewEngagementCounter(sub, testRelays(), cfg)
}

func TestEngagementTalliesByKind(t *testing.T) {
	sub := &fakeSubscriber{engagement: []types.Event{
		{ID: "e1", Kind: 1, Tags: [][]string{{"e", "post1"}}},
		{ID: "e2", Kind: 6, Tags: [][]string{{"e", "post1"}}},
		{ID: "e3", Kind: 7, Content: "+", Tags: [][]string{{"e", "post1"}}},
		{ID: "e4", Kind: 7, Content: "❤️", Tags: [][]string{{"e", "post1"}}},
		{ID: "e5", Kind: 7, Content: "🔥", Tags: [][]string{{"e", "post1"}}},
		{ID: "e6", Kind: 9735, Tags: [][]string{
			{"e", "post1"},
			{"bolt11", "lnbc2500u1pvjluez"},
		}},
	}}
	counter := newCounterFixture(sub)

	counts := counter.Count(context.Background(), []string{"post1"})
	c := counts["post1"]
	if c.Replies != 1 {
		t.Errorf("Replies = %d, want 1", c.Replies)
	}
	if c.Reposts != 1 {
		t.Errorf("Reposts = %d, want 1", c.Reposts)
	}
	if c.Likes != 2 {
		t.Errorf("Likes = %d, want 2 (only accepted glyphs)", c.Likes)
	}
	if c.Emoji != 1 {
		t.Errorf("Emoji = %d, want 1", c.Emoji)
	}
	if c.Zaps != 1 || c.ZapSats != 250000 {
		t.Errorf("Zaps = %d ZapSats = %d, want 1 and 250000", c.Zaps, c.ZapSats)
	}
}

func TestEngagementAttributesToLastETag(t *testing.T) {
	// Thread tags list the root first; the direct target is the last e tag.
	sub := &fakeSubscriber{engagement: []types.Event{
		{ID: "r1", Kind: 7, Content: "+", Tags: [][]string{
			{"e", "rootpost"},
			{"e", "post1"},
		}},
	}}
	counter := newCounterFixture(sub)

	counts := counter.Count(context.Background(), []string{"post1", "rootpost"})
	if counts["post1"].Likes != 1 {
		t.Errorf("post1 likes = %d, want 1", counts["post1"].Likes)
	}
	if counts["rootpost"].Likes != 0 {
		t.Errorf("rootpost likes = %d, want 0", counts["rootpost"].Likes)
	}
}

func TestEngagementIgnoresDuplicatesAndStrays(t *testing.T) {
	dup := types.Event{ID: "r1", Kind: 7, Content: "+", Tags: [][]string{{"e", "post1"}}}
	stray := types.Event{ID: "r2", Kind: 7, Content: "+", Tags: [][]string{{"e", "unrelated"}}}
	sub := &fakeSubscriber{engagement: []types.Event{dup, dup, stray}}
	counter := newCounterFixture(sub)

	counts := counter.Count(context.Background(), []string{"post1"})
	if counts["post1"].Likes != 1 {
		t.Errorf("Likes = %d, want 1 after dedup", counts["post1"].Likes)
	}
	if _, ok := counts["unrelated"]; ok {
		t.Error("stray target appeared in the result")
	}
}

func TestEngagementEmptyBatch(t *testing.T) {
	counter := newCounterFixture(&fakeSubscriber{})
	counts := counter.Count(context.Background(), nil)
	if len(counts) != 0 {
		t.Errorf("got %d entries for an empty batch", len(counts))
	}
}

func TestEngagementZeroesUnengagedPosts(t *testing.T) {
	counter := newCounterFixture(&fakeSubscriber{})
	counts := counter.Count(context.Background(), []string{"quiet"})
	c, ok := counts["quiet"]
	if !ok {
		t.Fatal("requested post missing from result")
	}
	if c != (types.EngagementCounts{}) {
		t.Errorf("counts = %+v, want zeroes", c)
	}
}
