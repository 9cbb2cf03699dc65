// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"sync"
	"sync/atomic"
)

// GetBrokerConsumerStatsAsync fans GetBrokerConsumerStats out to every
// child and joins on a countdown latch keyed by partition name. The
// first child failure short-circuits cb with that failure. Unlike
// NegativeAcknowledge, stats are not available once the consumer has
// left the Ready state: a call made while Closing/Closed/Failed fails
// fast with ErrConsumerNotInitialized rather than racing a fan-out
// against children already being torn down.
func (c *MultiTopicConsumer) GetBrokerConsumerStatsAsync(ctx context.Context, cb func(error, map[string]BrokerConsumerStats)) {
	if !c.state.isReady() {
		cb(ErrConsumerNotInitialized, nil)
		return
	}

	children := c.children.snapshot()
	if len(children) == 0 {
		cb(nil, map[string]BrokerConsumerStats{})
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)))
	var fired atomic.Bool

	var mu sync.Mutex
	aggregated := make(map[string]BrokerConsumerStats, len(children))

	for _, entry := range children {
		entry := entry
		go func() {
			stats, err := entry.child.GetBrokerConsumerStats(ctx)
			if err != nil {
				if fired.CompareAndSwap(false, true) {
					cb(err, nil)
				}
				return
			}
			mu.Lock()
			aggregated[entry.name] = stats
			mu.Unlock()

			if remaining.Add(-1) != 0 {
				return
			}
			if fired.CompareAndSwap(false, true) {
				cb(nil, aggregated)
			}
		}()
	}
}
