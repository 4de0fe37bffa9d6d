package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// Actions implements the write paths: constructing, signing and publishing
// reaction and repost events. Unlike the read paths these surface errors;
// the caller is expected to offer a retry.
type Actions struct {
	bc     relay.Broadcaster
	relays config.Source
	signer nostr.Signer
	now    func() time.Time
}

// NewActions wires the write paths. signer may be nil, in which case every
// operation fails with ErrAuthRequired.
func NewActions(bc relay.Broadcaster, relays config.Source, signer nostr.Signer) *Actions {
	return &Actions{
		bc:     bc,
		relays: relays,
		signer: signer,
		now:    time.Now,
	}
}

// ToggleLike publishes a "+" reaction to the given post.
func (a *Actions) ToggleLike(ctx context.Context, postID, authorPubkey string) error {
	return a.publish(ctx, &types.Event{
		Kind:    nostr.KindReaction,
		Content: "+",
		Tags: [][]string{
			{"e", postID},
			{"p", authorPubkey},
		},
	})
}

// ToggleRepost publishes a repost of the given post.
func (a *Actions) ToggleRepost(ctx context.Context, postID, authorPubkey string) error {
	return a.publish(ctx, &types.Event{
		Kind: nostr.KindRepost,
		Tags: [][]string{
			{"e", postID},
			{"p", authorPubkey},
		},
	})
}

func (a *Actions) publish(ctx context.Context, evt *types.Event) error {
	if a.signer == nil {
		return ErrAuthRequired
	}

	evt.CreatedAt = a.now().Unix()
	if err := a.signer.Sign(evt); err != nil {
		return fmt.Errorf("signing event: %w", err)
	}

	writeRelays := a.relays.Snapshot().Write
	acked := a.bc.Broadcast(ctx, writeRelays, evt)
	if acked == 0 {
		return fmt.Errorf("publishing %s to %d relays: %w", nostr.ShortID(evt.ID), len(writeRelays), ErrAllRelaysRejected)
	}

	slog.Info("published event",
		"kind", evt.Kind,
		"id", nostr.ShortID(evt.ID),
		"acked", acked,
		"relays", len(writeRelays))
	return nil
}
