package feed

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBatcherMergesOverlappingRequests(t *testing.T) {
	var batches atomic.Int64
	var mu sync.Mutex
	var batchedKeys []string

	b := newBatcher("test", func(keys []string) map[string]string {
		batches.Add(1)
		mu.Lock()
		batchedKeys = append(batchedKeys, keys...)
		mu.Unlock()
		out := make(map[string]string, len(keys))
		for _, k := range keys {
			out[k] = "v:" + k
		}
		return out
	}, 50*time.Millisecond, 0)

	var wg sync.WaitGroup
	requests := [][]string{
		{"a", "b", "c"},
		{"a", "d"},
		{"b", "e"},
	}
	results := make([]map[string]string, len(requests))
	for i, keys := range requests {
		wg.Add(1)
		go func(i int, keys []string) {
			defer wg.Done()
			results[i] = b.GetMultiple(context.Background(), keys)
		}(i, keys)
	}
	wg.Wait()

	if n := batches.Load(); n != 1 {
		t.Errorf("executed %d batches, want 1", n)
	}

	mu.Lock()
	uniq := map[string]bool{}
	for _, k := range batchedKeys {
		uniq[k] = true
	}
	mu.Unlock()
	for _, k := range []string{"a", "b", "c", "d", "e"} {
		if !uniq[k] {
			t.Errorf("key %q missing from the merged batch", k)
		}
	}

	// Each waiter gets exactly its own keys back.
	for i, keys := range requests {
		if len(results[i]) != len(keys) {
			t.Errorf("request %d got %d results, want %d", i, len(results[i]), len(keys))
		}
		for _, k := range keys {
			if results[i][k] != "v:"+k {
				t.Errorf("request %d key %q = %q", i, k, results[i][k])
			}
		}
	}
}

func TestBatcherMaxBatchFlushesEarly(t *testing.T) {
	done := make(chan struct{})
	b := newBatcher("test", func(keys []string) map[string]int {
		close(done)
		return map[string]int{}
	}, time.Hour, 2)

	go b.GetMultiple(context.Background(), []string{"a"})
	go b.GetMultiple(context.Background(), []string{"b"})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed despite reaching maxBatch")
	}
}

func TestBatcherEmptyKeys(t *testing.T) {
	b := newBatcher("test", func(keys []string) map[string]int {
		t.Error("batch function called for empty key set")
		return nil
	}, time.Millisecond, 0)
	if res := b.GetMultiple(context.Background(), nil); res != nil {
		t.Errorf("got %v, want nil", res)
	}
}

func TestBatcherAbandonsWaitOnCancel(t *testing.T) {
	release := make(chan struct{})
	b := newBatcher("test", func(keys []string) map[string]int {
		<-release
		return map[string]int{"a": 1}
	}, time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := b.GetMultiple(ctx, []string{"a"}); res != nil {
		t.Errorf("got %v, want nil for a canceled wait", res)
	}
	close(release)
}
