package feed

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// countingSubscriber records every subscription opened.
type countingSubscriber struct {
	inner *fakeSubscriber

	mu    sync.Mutex
	calls []types.Filter
}

func (c *countingSubscriber) Subscribe(ctx context.Context, relays []string, filters []types.Filter) (*relay.Stream, error) {
	c.mu.Lock()
	c.calls = append(c.calls, filters[0])
	c.mu.Unlock()
	return c.inner.Subscribe(ctx, relays, filters)
}

func (c *countingSubscriber) metadataFetches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.calls {
		if containsKind(f.Kinds, 0) && f.Since == nil {
			n++
		}
	}
	return n
}

func newProfileFixture(t *testing.T, sub relay.Subscriber) *ProfileService {
	t.Helper()
	backend := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { backend.Close() })
	ps := NewProfileService(backend, cache.DefaultConfig(), sub, testRelays())
	t.Cleanup(ps.Close)
	return ps
}

func metadataEvent(pubkey string, createdAt int64, content string) types.Event {
	return types.Event{
		ID:        "meta-" + pubkey,
		PubKey:    pubkey,
		Kind:      0,
		CreatedAt: createdAt,
		Content:   content,
	}
}

func TestResolveProfileFromMetadata(t *testing.T) {
	sub := &fakeSubscriber{profiles: []types.Event{
		metadataEvent("alicepk", 100, `{"name":"alice","display_name":"Alice","picture":"https://a.example/p.png","about":"hi"}`),
	}}
	ps := newProfileFixture(t, sub)

	p := ps.ResolveProfile(context.Background(), "alicepk")
	if p.Placeholder {
		t.Fatal("got a placeholder, want a resolved profile")
	}
	if p.DisplayName != "Alice" || p.Handle != "alice" || p.AvatarURL != "https://a.example/p.png" || p.Bio != "hi" {
		t.Errorf("profile = %+v", p)
	}
}

func TestResolveProfileDisplayNameFallsBackToName(t *testing.T) {
	sub := &fakeSubscriber{profiles: []types.Event{
		metadataEvent("bobpk", 100, `{"name":"bob"}`),
	}}
	ps := newProfileFixture(t, sub)

	p := ps.ResolveProfile(context.Background(), "bobpk")
	if p.DisplayName != "bob" {
		t.Errorf("DisplayName = %q, want the name fallback", p.DisplayName)
	}
}

func TestPlaceholderProfileDeterministic(t *testing.T) {
	a := PlaceholderProfile("deadbeef00112233")
	b := PlaceholderProfile("deadbeef00112233")
	if a.DisplayName != b.DisplayName || a.DisplayName == "" {
		t.Errorf("placeholder names differ: %q vs %q", a.DisplayName, b.DisplayName)
	}
	if !a.Placeholder {
		t.Error("Placeholder flag not set")
	}
	other := PlaceholderProfile("cafebabe99887766")
	if other.DisplayName == a.DisplayName {
		t.Error("distinct pubkeys produced the same placeholder name")
	}
}

func TestResolveProfileMissIsNegativeCached(t *testing.T) {
	sub := &countingSubscriber{inner: &fakeSubscriber{}}
	ps := newProfileFixture(t, sub)

	p := ps.ResolveProfile(context.Background(), "ghostpk")
	if !p.Placeholder {
		t.Fatal("want a placeholder for an unknown pubkey")
	}

	// A second resolve inside the not-found TTL must not hit relays.
	before := sub.metadataFetches()
	ps.ResolveProfile(context.Background(), "ghostpk")
	if after := sub.metadataFetches(); after != before {
		t.Errorf("metadata fetches went %d -> %d, want no new fetch", before, after)
	}
}

func TestResolveProfileCoalescesConcurrentMisses(t *testing.T) {
	sub := &countingSubscriber{inner: &fakeSubscriber{profiles: []types.Event{
		metadataEvent("alicepk", 100, `{"name":"alice"}`),
	}}}
	ps := newProfileFixture(t, sub)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ps.ResolveProfile(context.Background(), "alicepk")
		}()
	}
	wg.Wait()

	if n := sub.metadataFetches(); n != 1 {
		t.Errorf("metadata fetches = %d, want 1 coalesced fetch", n)
	}
}

func TestProfileStoreRejectsStaleMetadata(t *testing.T) {
	backend := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { backend.Close() })
	ps := NewProfileService(backend, cache.DefaultConfig(), &fakeSubscriber{}, testRelays())
	t.Cleanup(ps.Close)

	ctx := context.Background()
	newer := &types.Profile{PubKey: "alicepk", DisplayName: "Alice v2"}
	older := &types.Profile{PubKey: "alicepk", DisplayName: "Alice v1"}

	ps.storeProfile(ctx, newer, 200)
	ps.storeProfile(ctx, older, 100)

	data, ok, err := backend.Get(ctx, profileCacheKey("alicepk"))
	if err != nil || !ok {
		t.Fatalf("cache read: ok=%v err=%v", ok, err)
	}
	var entry types.CachedProfile
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatal(err)
	}
	if entry.Profile.DisplayName != "Alice v2" {
		t.Errorf("DisplayName = %q, want the newer metadata kept", entry.Profile.DisplayName)
	}
}

func TestProfilePlaceholderNeverShadowsRealProfile(t *testing.T) {
	backend := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { backend.Close() })
	ps := NewProfileService(backend, cache.DefaultConfig(), &fakeSubscriber{}, testRelays())
	t.Cleanup(ps.Close)

	ctx := context.Background()
	ps.storeProfile(ctx, &types.Profile{PubKey: "alicepk", DisplayName: "Alice"}, 100)
	ps.storeNotFound("alicepk")

	p := ps.ResolveProfile(ctx, "alicepk")
	if p.Placeholder || p.DisplayName != "Alice" {
		t.Errorf("profile = %+v, want the real profile preserved", p)
	}
}

// ctxStrictBackend refuses any operation whose context is already done,
// the way the redis and sqlite backends do.
type ctxStrictBackend struct {
	cache.Backend
}

func (b ctxStrictBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	return b.Backend.Get(ctx, key)
}

func (b ctxStrictBackend) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.Backend.Set(ctx, key, val, ttl)
}

func TestStoreNotFoundGuardOutlivesFetchWindow(t *testing.T) {
	// The not-found write happens after the fetch deadline has often
	// passed. Its shadow guard must read on a live context: an errored
	// read would fail open and negative-cache over a real profile.
	inner := cache.NewMemoryCache(100, time.Minute)
	t.Cleanup(func() { inner.Close() })
	ps := NewProfileService(ctxStrictBackend{Backend: inner}, cache.DefaultConfig(), &fakeSubscriber{}, testRelays())
	t.Cleanup(ps.Close)

	ps.storeProfile(context.Background(), &types.Profile{PubKey: "alicepk", DisplayName: "Alice"}, 100)
	ps.storeNotFound("alicepk")

	p := ps.ResolveProfile(context.Background(), "alicepk")
	if p.Placeholder || p.DisplayName != "Alice" {
		t.Errorf("profile = %+v, want the real profile preserved", p)
	}
}
