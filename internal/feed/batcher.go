package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// batcher collects requests over a time window and executes them in one
// batch. Unlike singleflight it also merges overlapping (not just
// identical) key sets: concurrent requests for [a,b,c], [a,d] and [b,e]
// become a single fetch for [a,b,c,d,e].
type batcher[V any] struct {
	name     string
	batchFn  func(keys []string) map[string]V
	window   time.Duration
	maxBatch int

	mu       sync.Mutex
	pending  map[string][]*batchWaiter[V]
	timer    *time.Timer
	timerSet bool
}

type batchWaiter[V any] struct {
	keys   []string
	result chan map[string]V
}

func newBatcher[V any](name string, batchFn func(keys []string) map[string]V, window time.Duration, maxBatch int) *batcher[V] {
	return &batcher[V]{
		name:     name,
		batchFn:  batchFn,
		window:   window,
		maxBatch: maxBatch,
		pending:  make(map[string][]*batchWaiter[V]),
	}
}

// GetMultiple fetches values for keys, merging with other concurrent
// requests that arrive within the batching window. A canceled context
// abandons the wait and returns nil; the batch itself keeps running for
// the remaining waiters.
func (b *batcher[V]) GetMultiple(ctx context.Context, keys []string) map[string]V {
	if len(keys) == 0 {
		return nil
	}

	waiter := &batchWaiter[V]{
		keys:   keys,
		result: make(chan map[string]V, 1),
	}

	b.mu.Lock()

	for _, key := range keys {
		b.pending[key] = append(b.pending[key], waiter)
	}

	if !b.timerSet {
		b.timerSet = true
		b.timer = time.AfterFunc(b.window, b.executeBatch)
	}

	if b.maxBatch > 0 && len(b.pending) >= b.maxBatch {
		b.timer.Stop()
		b.mu.Unlock()
		b.executeBatch()
	} else {
		b.mu.Unlock()
	}

	select {
	case res := <-waiter.result:
		return res
	case <-ctx.Done():
		return nil
	}
}

func (b *batcher[V]) executeBatch() {
	b.mu.Lock()

	keys := make([]string, 0, len(b.pending))
	for key := range b.pending {
		keys = append(keys, key)
	}

	waiterSet := make(map[*batchWaiter[V]]bool)
	for _, waiters := range b.pending {
		for _, w := range waiters {
			waiterSet[w] = true
		}
	}

	b.pending = make(map[string][]*batchWaiter[V])
	b.timerSet = false

	b.mu.Unlock()

	if len(keys) == 0 {
		return
	}

	slog.Debug("batcher: executing batch",
		"name", b.name,
		"keys", len(keys),
		"waiters", len(waiterSet))

	results := b.batchFn(keys)

	for waiter := range waiterSet {
		waiterResult := make(map[string]V, len(waiter.keys))
		for _, key := range waiter.keys {
			if val, ok := results[key]; ok {
				waiterResult[key] = val
			}
		}
		waiter.result <- waiterResult
	}
}
