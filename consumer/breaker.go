// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"sync"

	"github.com/sony/gobreaker"
)

// lookupBreaker wraps the external Lookup collaborator behind one
// circuit breaker per topic, grounded on the per-endpoint breaker map
// in this lineage's webhook notifier: a topic whose metadata service is
// failing degrades to fast local ErrConnectError responses instead of
// holding up a subscribe or refresh rendezvous on a hung network call.
type lookupBreaker struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	settings gobreaker.Settings
	lookup   Lookup
}

func newLookupBreaker(lookup Lookup, settings gobreaker.Settings) *lookupBreaker {
	return &lookupBreaker{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		settings: settings,
		lookup:   lookup,
	}
}

func (b *lookupBreaker) breakerFor(topic string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[topic]
	if !ok {
		settings := b.settings
		settings.Name = topic
		cb = gobreaker.NewCircuitBreaker(settings)
		b.breakers[topic] = cb
	}
	return cb
}

// getPartitionMetadata calls the underlying Lookup through topic's
// breaker. A breaker-open rejection and any lookup-level error are both
// surfaced to the caller as ErrConnectError; the specific underlying
// error is not distinguishable here, matching the fast-degrade intent.
func (b *lookupBreaker) getPartitionMetadata(ctx context.Context, topic string) (PartitionMetadata, error) {
	cb := b.breakerFor(topic)
	result, err := cb.Execute(func() (interface{}, error) {
		return b.lookup.GetPartitionMetadata(ctx, topic)
	})
	if err != nil {
		return PartitionMetadata{}, ErrConnectError
	}
	return result.(PartitionMetadata), nil
}
