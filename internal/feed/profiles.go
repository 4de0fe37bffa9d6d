package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/cache"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

const (
	profileFetchTimeout = 4 * time.Second
	profileBatchWindow  = 50 * time.Millisecond
	profileBatchMax     = 100
	trackDebounce       = 500 * time.Millisecond
)

// ProfileService resolves display metadata for pubkeys. Lookups go through
// the cache backend first; misses are coalesced so a burst of requests for
// overlapping pubkeys produces a single relay subscription. Unknown pubkeys
// resolve to a deterministic placeholder and are negative-cached briefly.
type ProfileService struct {
	backend cache.Backend
	cfg     cache.Config
	sub     relay.Subscriber
	relays  config.Source
	flight  singleflight.Group
	batch   *batcher[*types.Profile]
	now     func() time.Time

	// Live metadata tracking. The watched set only grows; each change
	// debounce-rebuilds one subscription covering the whole set.
	trackMu    sync.Mutex
	tracked    map[string]bool
	trackTimer *time.Timer
	liveStream *relay.Stream
	liveCtx    context.Context
	liveCancel context.CancelFunc
	closeOnce  sync.Once
}

// NewProfileService wires the resolver against a cache backend, a relay
// subscriber and a relay config source.
func NewProfileService(backend cache.Backend, cfg cache.Config, sub relay.Subscriber, relays config.Source) *ProfileService {
	ctx, cancel := context.WithCancel(context.Background())
	ps := &ProfileService{
		backend:    backend,
		cfg:        cfg,
		sub:        sub,
		relays:     relays,
		now:        time.Now,
		tracked:    make(map[string]bool),
		liveCtx:    ctx,
		liveCancel: cancel,
	}
	ps.batch = newBatcher("profiles", ps.fetchBatch, profileBatchWindow, profileBatchMax)
	return ps
}

func profileCacheKey(pubkey string) string {
	return "profile:" + pubkey
}

// PlaceholderProfile synthesizes display metadata from the pubkey alone.
// Deterministic: the same pubkey always yields the same placeholder.
func PlaceholderProfile(pubkey string) *types.Profile {
	return &types.Profile{
		PubKey:      pubkey,
		DisplayName: "nostrich-" + nostr.ShortID(pubkey),
		Placeholder: true,
	}
}

// ResolveProfile returns display metadata for one pubkey. Never returns
// nil: a pubkey with no metadata event resolves to a placeholder.
func (ps *ProfileService) ResolveProfile(ctx context.Context, pubkey string) *types.Profile {
	results := ps.ResolveProfiles(ctx, []string{pubkey})
	if p, ok := results[pubkey]; ok {
		return p
	}
	return PlaceholderProfile(pubkey)
}

// ResolveProfiles resolves a batch of pubkeys. Cached entries are served
// immediately; the remainder is fetched in one coalesced subscription.
// Every requested pubkey appears in the result.
func (ps *ProfileService) ResolveProfiles(ctx context.Context, pubkeys []string) map[string]*types.Profile {
	results := make(map[string]*types.Profile, len(pubkeys))
	if len(pubkeys) == 0 {
		return results
	}

	keys := make([]string, 0, len(pubkeys))
	seen := make(map[string]bool, len(pubkeys))
	for _, pk := range pubkeys {
		if pk == "" || seen[pk] {
			continue
		}
		seen[pk] = true
		keys = append(keys, profileCacheKey(pk))
	}

	cached, err := ps.backend.GetMultiple(ctx, keys)
	if err != nil {
		slog.Warn("profiles: cache read failed", "error", err)
	}

	var misses []string
	for pk := range seen {
		data, ok := cached[profileCacheKey(pk)]
		if !ok {
			incrementCacheMiss()
			misses = append(misses, pk)
			continue
		}
		var entry types.CachedProfile
		if err := json.Unmarshal(data, &entry); err != nil {
			incrementCacheMiss()
			misses = append(misses, pk)
			continue
		}
		incrementCacheHit()
		if entry.NotFound || entry.Profile == nil {
			results[pk] = PlaceholderProfile(pk)
		} else {
			results[pk] = entry.Profile
		}
	}

	if len(misses) == 0 {
		return results
	}

	// Coalesce per-pubkey so concurrent resolvers asking for the same
	// miss share a single fetch; the batcher underneath merges the
	// distinct pubkeys into one subscription.
	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, pk := range misses {
		wg.Add(1)
		go func(pk string) {
			defer wg.Done()
			v, _, _ := ps.flight.Do(profileCacheKey(pk), func() (interface{}, error) {
				fetched := ps.batch.GetMultiple(ctx, []string{pk})
				if p, ok := fetched[pk]; ok {
					return p, nil
				}
				return PlaceholderProfile(pk), nil
			})
			mu.Lock()
			results[pk] = v.(*types.Profile)
			mu.Unlock()
		}(pk)
	}
	wg.Wait()

	return results
}

// fetchBatch opens one metadata subscription covering all missed pubkeys,
// keeps the newest event per author, and writes results back to the cache.
func (ps *ProfileService) fetchBatch(pubkeys []string) map[string]*types.Profile {
	// The batch serves every caller merged into the window, so it carries
	// its own bound rather than any single caller's context.
	ctx, cancel := context.WithTimeout(context.Background(), profileFetchTimeout)
	defer cancel()

	relaySet := ps.relays.Snapshot().ProfileOrRead()
	filter := types.Filter{
		Authors: pubkeys,
		Kinds:   []int{nostr.KindProfileMetadata},
		Limit:   len(pubkeys),
	}

	newest := make(map[string]types.Event)

	stream, err := ps.sub.Subscribe(ctx, relaySet, []types.Filter{filter})
	if err != nil {
		slog.Warn("profiles: subscribe failed", "error", err, "pubkeys", len(pubkeys))
	} else {
		defer stream.Close()
	collect:
		for {
			select {
			case <-ctx.Done():
				break collect
			case <-stream.AllEOSE():
				break collect
			case evt := <-stream.Events():
				cur, ok := newest[evt.PubKey]
				if !ok || evt.CreatedAt > cur.CreatedAt {
					newest[evt.PubKey] = evt
				}
			}
		}
		// Drain anything already buffered.
		for {
			select {
			case evt := <-stream.Events():
				cur, ok := newest[evt.PubKey]
				if !ok || evt.CreatedAt > cur.CreatedAt {
					newest[evt.PubKey] = evt
				}
				continue
			default:
			}
			break
		}
	}

	results := make(map[string]*types.Profile, len(pubkeys))
	for _, pk := range pubkeys {
		evt, ok := newest[pk]
		if !ok {
			results[pk] = PlaceholderProfile(pk)
			ps.storeNotFound(pk)
			continue
		}
		profile := parseProfileContent(pk, evt.Content)
		results[pk] = profile
		ps.storeProfile(context.Background(), profile, evt.CreatedAt)
	}

	return results
}

// storeProfile writes a resolved profile, refusing to overwrite a cached
// entry built from a newer metadata event. Relays replay old replaceable
// events; without the check a stale kind 0 could clobber fresh data.
func (ps *ProfileService) storeProfile(ctx context.Context, profile *types.Profile, eventCreatedAt int64) {
	key := profileCacheKey(profile.PubKey)

	if data, ok, _ := ps.backend.Get(ctx, key); ok {
		var existing types.CachedProfile
		if err := json.Unmarshal(data, &existing); err == nil {
			if existing.Profile != nil && !existing.Profile.Placeholder && existing.EventCreatedAt > eventCreatedAt {
				slog.Debug("profiles: skipping stale metadata",
					"pubkey", nostr.ShortID(profile.PubKey),
					"cached_created_at", existing.EventCreatedAt,
					"event_created_at", eventCreatedAt)
				return
			}
		}
	}

	entry := types.CachedProfile{
		Profile:        profile,
		EventCreatedAt: eventCreatedAt,
		FetchedAt:      ps.now().Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := ps.backend.Set(ctx, key, data, ps.cfg.ProfileTTL); err != nil {
		slog.Warn("profiles: cache write failed", "error", err)
	}
}

// storeNotFound negative-caches a pubkey with no metadata so repeated
// misses do not hammer relays. Short TTL so a later publish is picked up.
// Runs on its own context: by the time the miss is recorded the fetch
// window has often expired, and an errored guard read on a real backend
// would let the negative entry shadow a concurrently stored profile.
func (ps *ProfileService) storeNotFound(pubkey string) {
	key := profileCacheKey(pubkey)

	// Never let a placeholder shadow a real profile that raced in.
	if data, ok, _ := ps.backend.Get(context.Background(), key); ok {
		var existing types.CachedProfile
		if err := json.Unmarshal(data, &existing); err == nil && existing.Profile != nil && !existing.Profile.Placeholder {
			return
		}
	}

	entry := types.CachedProfile{
		NotFound:  true,
		FetchedAt: ps.now().Unix(),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := ps.backend.Set(context.Background(), key, data, ps.cfg.ProfileNotFoundTTL); err != nil {
		slog.Warn("profiles: cache write failed", "error", err)
	}
}

// parseProfileContent maps kind 0 content JSON onto a Profile. Unknown
// fields are ignored; a display_name falls back to name.
func parseProfileContent(pubkey, content string) *types.Profile {
	var raw struct {
		Name        string `json:"name"`
		DisplayName string `json:"display_name"`
		Picture     string `json:"picture"`
		About       string `json:"about"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		slog.Debug("profiles: malformed metadata content", "pubkey", nostr.ShortID(pubkey), "error", err)
		return PlaceholderProfile(pubkey)
	}

	profile := &types.Profile{
		PubKey:      pubkey,
		DisplayName: raw.DisplayName,
		Handle:      raw.Name,
		AvatarURL:   raw.Picture,
		Bio:         raw.About,
	}
	if profile.DisplayName == "" {
		profile.DisplayName = raw.Name
	}
	if profile.DisplayName == "" {
		profile.DisplayName = "nostrich-" + nostr.ShortID(pubkey)
	}
	return profile
}

// TrackProfiles adds pubkeys to the live metadata watch. A single
// subscription with since=now covers the whole tracked set; rapid
// successive calls collapse into one resubscription.
func (ps *ProfileService) TrackProfiles(pubkeys []string) {
	ps.trackMu.Lock()
	defer ps.trackMu.Unlock()

	grew := false
	for _, pk := range pubkeys {
		if pk == "" || ps.tracked[pk] {
			continue
		}
		ps.tracked[pk] = true
		grew = true
	}
	if !grew {
		return
	}

	if ps.trackTimer != nil {
		ps.trackTimer.Stop()
	}
	ps.trackTimer = time.AfterFunc(trackDebounce, ps.resubscribeLive)
}

// resubscribeLive tears down the current live subscription and opens a new
// one covering the full tracked set.
func (ps *ProfileService) resubscribeLive() {
	ps.trackMu.Lock()
	old := ps.liveStream
	authors := make([]string, 0, len(ps.tracked))
	for pk := range ps.tracked {
		authors = append(authors, pk)
	}
	ps.trackMu.Unlock()

	if old != nil {
		old.Close()
	}

	if len(authors) == 0 {
		return
	}

	since := ps.now().Unix()
	filter := types.Filter{
		Authors: authors,
		Kinds:   []int{nostr.KindProfileMetadata},
		Since:   &since,
	}

	relaySet := ps.relays.Snapshot().ProfileOrRead()
	stream, err := ps.sub.Subscribe(ps.liveCtx, relaySet, []types.Filter{filter})
	if err != nil {
		slog.Warn("profiles: live subscribe failed", "error", err)
		return
	}

	ps.trackMu.Lock()
	ps.liveStream = stream
	ps.trackMu.Unlock()

	go ps.consumeLive(stream)
}

// consumeLive applies live metadata events to the cache. Exits when the
// stream closes, which happens on the next resubscription or shutdown.
func (ps *ProfileService) consumeLive(stream *relay.Stream) {
	defer stream.Close()
	for {
		select {
		case <-ps.liveCtx.Done():
			return
		case <-stream.Done():
			return
		case evt := <-stream.Events():
			if evt.Kind != nostr.KindProfileMetadata {
				continue
			}
			profile := parseProfileContent(evt.PubKey, evt.Content)
			ps.storeProfile(context.Background(), profile, evt.CreatedAt)
			slog.Debug("profiles: live metadata update", "pubkey", nostr.ShortID(evt.PubKey))
		}
	}
}

// Close stops live tracking.
func (ps *ProfileService) Close() {
	ps.closeOnce.Do(func() {
		ps.trackMu.Lock()
		if ps.trackTimer != nil {
			ps.trackTimer.Stop()
		}
		live := ps.liveStream
		ps.trackMu.Unlock()
		if live != nil {
			live.Close()
		}
		ps.liveCancel()
	})
}
