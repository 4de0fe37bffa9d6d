package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/config"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/nostr"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/relay"
	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

const referenceFetchTimeout = 3 * time.Second

// ReferenceResolver fetches single events by id, the way reposts and
// reactions resolve the post they point at. Timeouts yield nil, never an
// error: an unresolvable target just drops out of the feed.
type ReferenceResolver struct {
	sub    relay.Subscriber
	relays config.Source
}

// NewReferenceResolver wires the resolver.
func NewReferenceResolver(sub relay.Subscriber, relays config.Source) *ReferenceResolver {
	return &ReferenceResolver{sub: sub, relays: relays}
}

// ResolveByID fetches one event by id with a bounded wait. Returns nil on
// timeout or when no relay carries the event.
func (rr *ReferenceResolver) ResolveByID(ctx context.Context, eventID string) *types.Event {
	if eventID == "" {
		return nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, referenceFetchTimeout)
	defer cancel()

	filter := types.Filter{
		IDs:   []string{eventID},
		Limit: 1,
	}
	stream, err := rr.sub.Subscribe(fetchCtx, rr.relays.Snapshot().Read, []types.Filter{filter})
	if err != nil {
		slog.Debug("resolver: subscribe failed", "id", nostr.ShortID(eventID), "error", err)
		return nil
	}
	defer stream.Close()

	for {
		select {
		case <-fetchCtx.Done():
			return nil
		case <-stream.AllEOSE():
			// Drain anything queued behind the completion signal.
			for {
				select {
				case evt := <-stream.Events():
					if evt.ID == eventID {
						return &evt
					}
					continue
				default:
				}
				return nil
			}
		case evt := <-stream.Events():
			if evt.ID == eventID {
				return &evt
			}
		}
	}
}

// memoResolver wraps a ReferenceResolver with a per-pass memo table so one
// aggregation pass never fetches the same target twice. Concurrent lookups
// for the same id share one fetch. Not for reuse across passes.
type memoResolver struct {
	rr *ReferenceResolver

	mu   sync.Mutex
	memo map[string]*memoEntry
}

type memoEntry struct {
	done chan struct{}
	evt  *types.Event
}

func newMemoResolver(rr *ReferenceResolver) *memoResolver {
	return &memoResolver{
		rr:   rr,
		memo: make(map[string]*memoEntry),
	}
}

func (m *memoResolver) ResolveByID(ctx context.Context, eventID string) *types.Event {
	m.mu.Lock()
	if entry, ok := m.memo[eventID]; ok {
		m.mu.Unlock()
		select {
		case <-entry.done:
			return entry.evt
		case <-ctx.Done():
			return nil
		}
	}
	entry := &memoEntry{done: make(chan struct{})}
	m.memo[eventID] = entry
	m.mu.Unlock()

	entry.evt = m.rr.ResolveByID(ctx, eventID)
	close(entry.done)
	return entry.evt
}
