package relay

import (
	"context"
	"testing"
	"time"

	"github.com/Hakkadaikon/nostr-front-sub000/internal/types"
)

func TestStreamCloseIdempotent(t *testing.T) {
	s := NewStream(4)
	s.Close()
	s.Close()
	s.Close()

	select {
	case <-s.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestStreamPushAfterClose(t *testing.T) {
	s := NewStream(4)
	s.Close()
	if s.Push(types.Event{ID: "a"}) {
		t.Error("Push returned true on a closed stream")
	}
}

func TestStreamSignalAllEOSERepeatable(t *testing.T) {
	s := NewStream(4)
	s.SignalAllEOSE()
	s.SignalAllEOSE()
	select {
	case <-s.AllEOSE():
	default:
		t.Fatal("AllEOSE not closed")
	}
}

func TestStreamDeliversBufferedEvents(t *testing.T) {
	s := NewStream(4)
	if !s.Push(types.Event{ID: "a"}) {
		t.Fatal("Push failed on an open stream")
	}
	s.SignalAllEOSE()

	select {
	case evt := <-s.Events():
		if evt.ID != "a" {
			t.Errorf("got %q, want a", evt.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("buffered event never delivered")
	}
}

func TestSubscribeEmptyRelaySet(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	mux := NewMultiplexer(pool)

	stream, err := mux.Subscribe(context.Background(), nil, []types.Filter{{Kinds: []int{1}}})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer stream.Close()

	select {
	case <-stream.AllEOSE():
	case <-time.After(time.Second):
		t.Fatal("empty relay set should complete immediately")
	}
}

func TestBroadcastEmptyRelaySet(t *testing.T) {
	pool := NewPool()
	defer pool.Close()
	mux := NewMultiplexer(pool)

	acked := mux.Broadcast(context.Background(), nil, &types.Event{ID: "a"})
	if acked != 0 {
		t.Errorf("acked = %d, want 0", acked)
	}
}
