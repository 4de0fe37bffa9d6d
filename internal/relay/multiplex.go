package relay

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

// Stream is the unified view over one logical subscription fanned across a
// relay set. Events from all relays arrive interleaved with no ordering
// guarantee; the same event ID may arrive more than once and callers must
// deduplicate. AllEOSE fires when every relay that accepted the
// subscription has signaled end-of-stored-events.
type Stream struct {
	events  chan types.Event
	allEOSE chan struct{}
	done    chan struct{}

	eoseOnce  sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
}

// NewStream builds an unconnected stream. The multiplexer feeds pooled
// subscriptions into it; tests feed it directly.
func NewStream(buffer int) *Stream {
	return &Stream{
		events:  make(chan types.Event, buffer),
		allEOSE: make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Events returns the unified event channel.
func (s *Stream) Events() <-chan types.Event {
	return s.events
}

// AllEOSE is closed once every participating relay reported completion of
// initial results.
func (s *Stream) AllEOSE() <-chan struct{} {
	return s.allEOSE
}

// Done is closed when the stream is closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Push delivers an event into the stream without blocking. Returns false if
// the stream is closed or the buffer is full.
func (s *Stream) Push(evt types.Event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- evt:
		return true
	case <-s.done:
		return false
	default:
		droppedEventCount.Add(1)
		return false
	}
}

// SignalAllEOSE marks initial results complete. Safe to call repeatedly.
func (s *Stream) SignalAllEOSE() {
	s.eoseOnce.Do(func() {
		close(s.allEOSE)
	})
}

// Close tears the stream down. Idempotent and safe to call after natural
// completion; subsequent calls have no observable effect.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
	})
}

// Subscriber opens multiplexed subscriptions. The feed layer depends on
// this rather than the pool so tests can substitute a fake.
type Subscriber interface {
	Subscribe(ctx context.Context, relays []string, filters []types.Filter) (*Stream, error)
}

// Broadcaster publishes a signed event to a relay set and reports how many
// relays acknowledged it.
type Broadcaster interface {
	Broadcast(ctx context.Context, relays []string, evt *types.Event) int
}

// Multiplexer fans subscriptions and publishes across the connection pool.
type Multiplexer struct {
	pool *Pool
}

// NewMultiplexer wraps a pool.
func NewMultiplexer(pool *Pool) *Multiplexer {
	return &Multiplexer{pool: pool}
}

// Subscribe opens the filter set on every relay and returns the unified
// stream. A relay that fails to connect or never answers does not block the
// others; it simply never contributes events. An empty relay set yields a
// stream that signals completion immediately.
func (m *Multiplexer) Subscribe(ctx context.Context, relays []string, filters []types.Filter) (*Stream, error) {
	stream := NewStream(256)

	if len(relays) == 0 {
		stream.SignalAllEOSE()
		return stream, nil
	}

	subCtx, cancel := context.WithCancel(ctx)
	stream.cancel = cancel

	subID := NewSubID("mux")
	eoseCh := make(chan string, len(relays))

	var wg sync.WaitGroup
	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			sub, err := m.pool.Subscribe(subCtx, relayURL, subID, filters)
			if err != nil {
				slog.Debug("mux: subscribe failed", "relay", relayURL, "error", err)
				// A relay that never joined still counts toward
				// completion, otherwise AllEOSE could never fire.
				eoseCh <- relayURL
				return
			}
			defer m.pool.Unsubscribe(relayURL, sub)
			m.forward(subCtx, relayURL, sub, stream, eoseCh)
		}(relayURL)
	}

	go func() {
		seen := 0
		for {
			select {
			case <-subCtx.Done():
				return
			case <-stream.done:
				return
			case <-eoseCh:
				seen++
				if seen >= len(relays) {
					stream.SignalAllEOSE()
					return
				}
			}
		}
	}()

	// Reap the forwarders once the stream is closed.
	go func() {
		<-stream.done
		cancel()
		wg.Wait()
	}()

	return stream, nil
}

// forward pumps one relay subscription into the unified stream.
func (m *Multiplexer) forward(ctx context.Context, relayURL string, sub *Subscription, stream *Stream, eoseCh chan<- string) {
	eoseSent := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-sub.Done:
			// Relay closed us; count as complete so AllEOSE can still fire.
			if !eoseSent {
				select {
				case eoseCh <- relayURL:
				default:
				}
			}
			return
		case <-stream.done:
			return
		case evt := <-sub.EventChan:
			stream.Push(evt)
		case <-sub.EOSEChan:
			// Stored events queued before the EOSE frame must reach the
			// stream before completion is counted.
			for {
				select {
				case evt := <-sub.EventChan:
					stream.Push(evt)
					continue
				default:
				}
				break
			}
			if !eoseSent {
				eoseSent = true
				select {
				case eoseCh <- relayURL:
				default:
				}
			}
			// Keep listening after EOSE; relays push live matches.
		}
	}
}

// Broadcast publishes to every relay concurrently and returns the number of
// relays that acked with OK=true.
func (m *Multiplexer) Broadcast(ctx context.Context, relays []string, evt *types.Event) int {
	if len(relays) == 0 {
		return 0
	}

	var wg sync.WaitGroup
	var acked int
	var mu sync.Mutex

	for _, relayURL := range relays {
		wg.Add(1)
		go func(relayURL string) {
			defer wg.Done()
			ack, err := m.pool.Publish(ctx, relayURL, evt)
			if err != nil {
				slog.Warn("broadcast: publish failed", "relay", relayURL, "error", err)
				return
			}
			if !ack.Success {
				slog.Warn("broadcast: relay rejected event", "relay", relayURL, "message", ack.Message)
				return
			}
			mu.Lock()
			acked++
			mu.Unlock()
		}(relayURL)
	}
	wg.Wait()

	return acked
}
