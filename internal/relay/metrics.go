package relay

import "sync/atomic"

// droppedEventCount counts events dropped because a subscription channel
// was full. Exposed for health reporting.
var droppedEventCount atomic.Int64

// DroppedEvents returns the number of events dropped pool-wide.
func DroppedEvents() int64 {
	return droppedEventCount.Load()
}
