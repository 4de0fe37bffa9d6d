package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

const (
	followFetchTimeout = 5 * time.Second
	// Entries persist well past the freshness TTL so a total relay outage
	// can still serve the last known set.
	followBackendTTL = 24 * time.Hour
)

// FollowService resolves and caches follow sets. One subscription covers
// both the canonical contact-list kind and the legacy people-list kind;
// canonical always wins, regardless of which event is newer.
type FollowService struct {
	backend cache.Backend
	cfg     cache.Config
	sub     relay.Subscriber
	relays  config.Source
	flight  singleflight.Group
	now     func() time.Time
}

// NewFollowService wires the follow-set resolver.
func NewFollowService(backend cache.Backend, cfg cache.Config, sub relay.Subscriber, relays config.Source) *FollowService {
	return &FollowService{
		backend: backend,
		cfg:     cfg,
		sub:     sub,
		relays:  relays,
		now:     time.Now,
	}
}

func followCacheKey(pubkey string) string {
	return "follows:" + pubkey
}

// Resolve returns the follow set for pubkey. A fresh cached entry is served
// directly; otherwise one bounded subscription fetches both list kinds.
// On total failure the last cached value is returned even if expired:
// availability beats strict freshness here. Never returns nil.
func (fs *FollowService) Resolve(ctx context.Context, pubkey string, forceRefresh bool) *types.FollowSet {
	cached, cachedOK := fs.readCached(ctx, pubkey)
	if cachedOK && !forceRefresh && fs.isFresh(cached) {
		incrementCacheHit()
		return cached.FollowSet
	}
	incrementCacheMiss()

	v, _, _ := fs.flight.Do(followCacheKey(pubkey), func() (interface{}, error) {
		// Coalesced callers share the first caller's context; if it is
		// canceled, waiters fall through to the stale set below.
		fetched, ok := fs.fetch(ctx, pubkey)
		if !ok && cachedOK {
			slog.Warn("follows: fetch failed, serving stale set",
				"pubkey", nostr.ShortID(pubkey),
				"fetched_at", cached.FetchedAt)
			return cached.FollowSet, nil
		}
		fs.store(context.Background(), pubkey, fetched)
		return fetched.FollowSet, nil
	})
	return v.(*types.FollowSet)
}

// IsFollowing reports whether owner follows target. known is false when no
// follow set could be determined at all; callers must treat that as
// indeterminate rather than "not following".
func (fs *FollowService) IsFollowing(ctx context.Context, owner, target string) (following bool, known bool) {
	if owner == "" {
		return false, false
	}
	set := fs.Resolve(ctx, owner, false)
	if set.SourceKind == 0 {
		// Synthesized empty set from a failed or empty fetch.
		return false, false
	}
	return set.Contains(target), true
}

func (fs *FollowService) readCached(ctx context.Context, pubkey string) (*types.CachedFollowSet, bool) {
	data, ok, err := fs.backend.Get(ctx, followCacheKey(pubkey))
	if err != nil || !ok {
		return nil, false
	}
	var entry types.CachedFollowSet
	if err := json.Unmarshal(data, &entry); err != nil || entry.FollowSet == nil {
		return nil, false
	}
	return &entry, true
}

func (fs *FollowService) isFresh(entry *types.CachedFollowSet) bool {
	age := fs.now().Unix() - entry.FetchedAt
	return age >= 0 && time.Duration(age)*time.Second < fs.cfg.FollowSetTTL
}

// fetch opens one subscription for both list kinds and applies the
// selection rule: newest canonical event if any exist, else newest legacy
// event. Zero events yields an empty set with ok=true when the relays
// actually completed (EOSE), since that is an authoritative answer; ok is
// false when the subscription failed or timed out with nothing.
func (fs *FollowService) fetch(ctx context.Context, pubkey string) (*types.CachedFollowSet, bool) {
	ctx, cancel := context.WithTimeout(ctx, followFetchTimeout)
	defer cancel()

	relaySet := fs.relays.Snapshot().Read
	filter := types.Filter{
		Authors: []string{pubkey},
		Kinds:   []int{nostr.KindContacts, nostr.KindLegacyPeopleList},
		Limit:   4,
	}

	stream, err := fs.sub.Subscribe(ctx, relaySet, []types.Filter{filter})
	if err != nil {
		slog.Warn("follows: subscribe failed", "pubkey", nostr.ShortID(pubkey), "error", err)
		return fs.emptySet(pubkey), false
	}
	defer stream.Close()

	var canonical, legacy *types.Event
	completed := false

	consider := func(evt types.Event) {
		if evt.PubKey != pubkey {
			return
		}
		switch evt.Kind {
		case nostr.KindContacts:
			if canonical == nil || evt.CreatedAt > canonical.CreatedAt {
				canonical = &evt
			}
		case nostr.KindLegacyPeopleList:
			if legacy == nil || evt.CreatedAt > legacy.CreatedAt {
				legacy = &evt
			}
		}
	}

collect:
	for {
		select {
		case <-ctx.Done():
			break collect
		case <-stream.AllEOSE():
			completed = true
			// Drain events queued behind the completion signal.
			for {
				select {
				case evt := <-stream.Events():
					consider(evt)
					continue
				default:
				}
				break
			}
			break collect
		case evt := <-stream.Events():
			consider(evt)
		}
	}

	selected := canonical
	if selected == nil {
		selected = legacy
	}
	if selected == nil {
		if completed {
			slog.Debug("follows: no list events", "pubkey", nostr.ShortID(pubkey))
		}
		return fs.emptySet(pubkey), completed
	}

	set := &types.FollowSet{
		OwnerPubKey: pubkey,
		Members:     nostr.GetTagValues(selected.Tags, "p"),
		SourceKind:  selected.Kind,
		FetchedAt:   fs.now().Unix(),
	}
	slog.Debug("follows: resolved",
		"pubkey", nostr.ShortID(pubkey),
		"members", len(set.Members),
		"source_kind", set.SourceKind)
	return &types.CachedFollowSet{
		FollowSet:      set,
		EventCreatedAt: selected.CreatedAt,
		FetchedAt:      fs.now().Unix(),
	}, true
}

func (fs *FollowService) emptySet(pubkey string) *types.CachedFollowSet {
	return &types.CachedFollowSet{
		FollowSet: &types.FollowSet{
			OwnerPubKey: pubkey,
			Members:     nil,
			FetchedAt:   fs.now().Unix(),
		},
		FetchedAt: fs.now().Unix(),
	}
}

// store writes a resolved set, refusing to downgrade a cached entry built
// from a newer list event of the same or better kind.
func (fs *FollowService) store(ctx context.Context, pubkey string, entry *types.CachedFollowSet) {
	if existing, ok := fs.readCached(ctx, pubkey); ok {
		existingCanonical := existing.FollowSet.SourceKind == nostr.KindContacts
		newCanonical := entry.FollowSet.SourceKind == nostr.KindContacts
		if existingCanonical && !newCanonical && entry.FollowSet.SourceKind != 0 {
			return
		}
		if existingCanonical == newCanonical && existing.EventCreatedAt > entry.EventCreatedAt && entry.FollowSet.SourceKind != 0 {
			return
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	// Empty sets are never cached past the freshness window: a temporary
	// relay outage must self-heal on the next resolve.
	ttl := followBackendTTL
	if len(entry.FollowSet.Members) == 0 {
		ttl = fs.cfg.FollowSetTTL
	}
	if err := fs.backend.Set(ctx, followCacheKey(pubkey), data, ttl); err != nil {
		slog.Warn("follows: cache write failed", "error", err)
	}
}
