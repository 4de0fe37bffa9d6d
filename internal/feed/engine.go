package feed

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	collectTimeout  = 8 * time.Second
	// After the page fills, keep draining briefly so duplicates still in
	// flight from slower relays are absorbed instead of surfacing on the
	// next page.
	collectGrace    = 300 * time.Millisecond
	resolveParallel = 16
	overfetchFactor = 3
)

// TimelineQuery describes one timeline page request.
type TimelineQuery struct {
	Scope    types.FeedScope
	Viewer   string
	PageSize int
	// Cursor is a created_at bound: only events strictly older are
	// requested. Zero means latest.
	Cursor int64
	// IncludeSelf adds the viewer's own pubkey to the follow scope.
	IncludeSelf bool
}

// Engine aggregates relay events into timeline pages. One engine instance
// owns the caches; it is safe for concurrent use.
type Engine struct {
	sub      relay.Subscriber
	relays   config.Source
	profiles *ProfileService
	follows  *FollowService
	resolver *ReferenceResolver
	counter  *EngagementCounter
}

// NewEngine assembles the timeline engine from its collaborators.
func NewEngine(sub relay.Subscriber, relays config.Source, profiles *ProfileService, follows *FollowService, resolver *ReferenceResolver, counter *EngagementCounter) *Engine {
	return &Engine{
		sub:      sub,
		relays:   relays,
		profiles: profiles,
		follows:  follows,
		resolver: resolver,
		counter:  counter,
	}
}

// ResolveProfile exposes the profile cache to embedders.
func (e *Engine) ResolveProfile(ctx context.Context, pubkey string) *types.Profile {
	return e.profiles.ResolveProfile(ctx, pubkey)
}

// IsFollowing reports whether viewer follows target. known is false when
// the answer is indeterminate (no viewer, or the follow set could not be
// resolved); callers must not read that as "not following".
func (e *Engine) IsFollowing(ctx context.Context, viewer, target string) (following bool, known bool) {
	return e.follows.IsFollowing(ctx, viewer, target)
}

// GetTimeline runs the aggregation state machine for one page. All relay
// timeouts degrade to fewer results; the only errors are the structural
// ones: ErrEmptyScope for a following feed with nothing to follow.
func (e *Engine) GetTimeline(ctx context.Context, q TimelineQuery) (*types.FeedResult, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	filter, err := e.buildFilter(ctx, q, pageSize)
	if err != nil {
		return nil, err
	}

	entries, oldest, collected := e.collect(ctx, *filter, pageSize)

	// Finalizing: order everything collected by display timestamp before
	// cutting the page, so an overfull collection surfaces its newest
	// entries rather than whichever resolved first. Engagement is counted
	// only for the posts that made the page.
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].DisplayedAt() > entries[j].DisplayedAt()
	})
	if len(entries) > pageSize {
		entries = entries[:pageSize:pageSize]
	}
	e.applyCounts(ctx, entries)

	result := &types.FeedResult{
		Entries:    entries,
		NextCursor: oldest,
		HasMore:    collected > len(entries),
	}
	slog.Info("timeline page",
		"scope", q.Scope,
		"entries", len(result.Entries),
		"collected", collected,
		"has_more", result.HasMore,
		"next_cursor", result.NextCursor)
	return result, nil
}

// buildFilter runs the FetchingFollowSet and Subscribing setup: scope
// decides authors and kinds.
func (e *Engine) buildFilter(ctx context.Context, q TimelineQuery, pageSize int) (*types.Filter, error) {
	filter := types.Filter{
		Limit: pageSize * overfetchFactor,
	}
	if q.Cursor > 0 {
		until := q.Cursor - 1
		filter.Until = &until
	}

	switch q.Scope {
	case types.ScopeFollowing:
		set := e.follows.Resolve(ctx, q.Viewer, false)
		authors := append([]string(nil), set.Members...)
		if q.IncludeSelf && q.Viewer != "" && !set.Contains(q.Viewer) {
			authors = append(authors, q.Viewer)
		}
		if len(authors) == 0 {
			return nil, ErrEmptyScope
		}
		filter.Authors = authors
		filter.Kinds = append([]int{nostr.KindTextNote}, nostr.ActivityKinds...)
	default:
		// Reactions and zaps are too noisy to pull unscoped.
		filter.Kinds = []int{nostr.KindTextNote, nostr.KindRepost}
	}

	return &filter, nil
}

type resolveOutcome struct {
	entry *types.FeedEntry
}

// collect runs the Collecting phase: classify each raw event and resolve it
// into a FeedEntry concurrently, deduplicating by event id (which is the
// entry's dedup key for both plain posts and activities). Stops at the
// timeout, at full completion, or once pageSize unique entries have
// resolved plus a grace window. Returns the entries, the oldest raw
// created_at observed, and the number of unique entries resolved.
func (e *Engine) collect(ctx context.Context, filter types.Filter, pageSize int) ([]types.FeedEntry, int64, int) {
	collectCtx, cancel := context.WithTimeout(ctx, collectTimeout)
	defer cancel()

	stream, err := e.sub.Subscribe(collectCtx, e.relays.Snapshot().Read, []types.Filter{filter})
	if err != nil {
		slog.Warn("timeline: subscribe failed", "error", err)
		return nil, 0, 0
	}
	defer stream.Close()

	memo := newMemoResolver(e.resolver)
	sem := make(chan struct{}, resolveParallel)
	resultCh := make(chan resolveOutcome, resolveParallel)

	var (
		entries []types.FeedEntry
		seen    = map[string]bool{}
		oldest  int64
		pending int
		eosed   bool
	)
	eoseCh := stream.AllEOSE()
	var grace <-chan time.Time

	dispatch := func(evt types.Event) {
		if seen[evt.ID] {
			return
		}
		seen[evt.ID] = true
		if oldest == 0 || evt.CreatedAt < oldest {
			oldest = evt.CreatedAt
		}
		pending++
		go func() {
			select {
			case sem <- struct{}{}:
			case <-collectCtx.Done():
				return
			}
			defer func() { <-sem }()
			entry := e.classify(collectCtx, &evt, memo)
			select {
			case resultCh <- resolveOutcome{entry: entry}:
			case <-collectCtx.Done():
			}
		}()
	}

	for {
		select {
		case <-collectCtx.Done():
			return entries, oldest, len(entries)

		case <-grace:
			return entries, oldest, len(entries)

		case <-eoseCh:
			eoseCh = nil
			// Events already queued behind the completion signal still
			// belong to this page.
		drain:
			for {
				select {
				case evt := <-stream.Events():
					dispatch(evt)
				default:
					break drain
				}
			}
			eosed = true
			if pending == 0 {
				return entries, oldest, len(entries)
			}

		case evt := <-stream.Events():
			dispatch(evt)

		case res := <-resultCh:
			pending--
			if res.entry != nil {
				entries = append(entries, *res.entry)
				if len(entries) >= pageSize && grace == nil {
					grace = time.After(collectGrace)
				}
			}
			if eosed && pending == 0 {
				return entries, oldest, len(entries)
			}
		}
	}
}

// classify turns one raw event into a FeedEntry, resolving referenced
// targets and profiles. Returns nil when the event carries an activity
// whose target cannot be resolved within its bounded wait.
func (e *Engine) classify(ctx context.Context, evt *types.Event, memo *memoResolver) *types.FeedEntry {
	switch evt.Kind {
	case nostr.KindTextNote:
		entry := &types.FeedEntry{TargetPost: *evt}
		if nostr.HasTag(evt.Tags, "e") {
			// A reply surfaces as an activity against itself.
			entry.Activity = &types.Activity{
				Type:          types.ActivityReply,
				ActorPubKey:   evt.PubKey,
				SourceEventID: evt.ID,
				TargetPostID:  evt.ID,
				CreatedAt:     evt.CreatedAt,
			}
		}
		e.attachProfiles(ctx, entry)
		return entry

	case nostr.KindRepost:
		target := e.resolveTarget(ctx, evt, memo)
		if target == nil {
			return nil
		}
		entry := &types.FeedEntry{
			TargetPost: *target,
			Activity: &types.Activity{
				Type:          types.ActivityRepost,
				ActorPubKey:   evt.PubKey,
				SourceEventID: evt.ID,
				TargetPostID:  target.ID,
				CreatedAt:     evt.CreatedAt,
			},
		}
		e.attachProfiles(ctx, entry)
		return entry

	case nostr.KindReaction:
		target := e.resolveTarget(ctx, evt, memo)
		if target == nil {
			return nil
		}
		act := &types.Activity{
			Type:          types.ActivityLike,
			ActorPubKey:   evt.PubKey,
			SourceEventID: evt.ID,
			TargetPostID:  target.ID,
			CreatedAt:     evt.CreatedAt,
		}
		if !nostr.IsLikeContent(evt.Content) {
			act.Type = types.ActivityEmoji
			act.Emoji = evt.Content
		}
		entry := &types.FeedEntry{TargetPost: *target, Activity: act}
		e.attachProfiles(ctx, entry)
		return entry

	case nostr.KindZapReceipt:
		target := e.resolveTarget(ctx, evt, memo)
		if target == nil {
			return nil
		}
		entry := &types.FeedEntry{
			TargetPost: *target,
			Activity: &types.Activity{
				Type:          types.ActivityZap,
				ActorPubKey:   ZapSenderPubkey(evt),
				SourceEventID: evt.ID,
				TargetPostID:  target.ID,
				CreatedAt:     evt.CreatedAt,
				AmountSats:    DecodeZapAmountSats(evt),
				Message:       ZapComment(evt),
			},
		}
		e.attachProfiles(ctx, entry)
		return entry

	default:
		slog.Debug("timeline: unhandled kind", "kind", evt.Kind, "id", nostr.ShortID(evt.ID))
		return nil
	}
}

func (e *Engine) resolveTarget(ctx context.Context, evt *types.Event, memo *memoResolver) *types.Event {
	targetID := nostr.GetLastTagValue(evt.Tags, "e")
	if targetID == "" {
		return nil
	}
	target := memo.ResolveByID(ctx, targetID)
	if target == nil {
		slog.Debug("timeline: dropped activity with unresolvable target",
			"kind", evt.Kind,
			"source", nostr.ShortID(evt.ID),
			"target", nostr.ShortID(targetID))
	}
	return target
}

// attachProfiles resolves the post author's profile and, when an activity
// is present, the actor's, in one batched lookup. Both are also registered
// for live metadata tracking.
func (e *Engine) attachProfiles(ctx context.Context, entry *types.FeedEntry) {
	pubkeys := []string{entry.TargetPost.PubKey}
	if entry.Activity != nil && entry.Activity.ActorPubKey != entry.TargetPost.PubKey {
		pubkeys = append(pubkeys, entry.Activity.ActorPubKey)
	}
	profiles := e.profiles.ResolveProfiles(ctx, pubkeys)
	entry.AuthorProfile = profiles[entry.TargetPost.PubKey]
	if entry.Activity != nil {
		entry.Activity.ActorProfile = profiles[entry.Activity.ActorPubKey]
	}
	e.profiles.TrackProfiles(pubkeys)
}

// applyCounts runs the engagement counter once over the unique surfaced
// post ids and overwrites each entry's counts.
func (e *Engine) applyCounts(ctx context.Context, entries []types.FeedEntry) {
	if len(entries) == 0 {
		return
	}
	idSet := make(map[string]bool, len(entries))
	ids := make([]string, 0, len(entries))
	for i := range entries {
		id := entries[i].TargetPost.ID
		if id == "" || idSet[id] {
			continue
		}
		idSet[id] = true
		ids = append(ids, id)
	}
	counts := e.counter.Count(ctx, ids)
	for i := range entries {
		if c, ok := counts[entries[i].TargetPost.ID]; ok {
			entries[i].Counts = c
		}
	}
}
