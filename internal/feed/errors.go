// Package feed resolves raw relay events into a coherent application feed:
// profile and follow-set caches, reference resolution, engagement counting
// and the timeline aggregation engine.
package feed

import "errors"

var (
	// ErrEmptyScope is returned for a following-scope timeline when the
	// viewer's resolvable follow set is empty. Callers show an onboarding
	// affordance instead of an empty feed.
	ErrEmptyScope = errors.New("follow scope is empty")

	// ErrAuthRequired is returned by write paths when no signer is
	// configured.
	ErrAuthRequired = errors.New("authentication required")

	// ErrAllRelaysRejected is returned when a publish reached no relay or
	// every relay rejected the event.
	ErrAllRelaysRejected = errors.New("all relays rejected the event")
)
