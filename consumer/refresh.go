// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"log/slog"
	"time"
)

// startPartitionRefresher arms the periodic partition-discovery timer
// when config.PartitionsUpdateInterval > 0. It is safe to call when
// disabled: refresherCancel stays nil and later close calls no-op.
func (c *MultiTopicConsumer) startPartitionRefresher(ctx context.Context) {
	if c.config.PartitionsUpdateInterval <= 0 {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	c.refresherCancel = cancel

	go func() {
		ticker := time.NewTicker(c.config.PartitionsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.refreshPartitionsOnce(ctx)
			}
		}
	}()
}

// refreshPartitionsOnce snapshots PartitionTable, looks up every
// topic's current partition count, and subscribes any newly grown
// range. A lookup failure or a non-growing count for a given topic is
// ignored for that tick: the next tick tries again.
func (c *MultiTopicConsumer) refreshPartitionsOnce(ctx context.Context) {
	snapshot := c.partitions.snapshot()
	if len(snapshot) == 0 {
		return
	}

	for topic, have := range snapshot {
		topic, have := topic, have
		go func() {
			meta, err := c.lookup.getPartitionMetadata(ctx, topic)
			if err != nil {
				c.logger.Warn("partition refresh lookup failed", slog.String("topic", topic), slog.Any("err", err))
				return
			}

			grown := meta.Partitions
			if grown == 0 {
				grown = 1
			}
			if grown <= have {
				return
			}

			c.subscribePartitions(ctx, topic, have, meta.Partitions, func(err error) {
				if err != nil {
					c.logger.Error("partition refresh subscribe failed", slog.String("topic", topic), slog.Any("err", err))
					return
				}
				c.metrics.recordPartitionsDiscovered(topic, grown-have)
			})
		}()
	}
}

// stopPartitionRefresher cancels the refresh timer goroutine, if one
// was armed.
func (c *MultiTopicConsumer) stopPartitionRefresher() {
	if c.refresherCancel != nil {
		c.refresherCancel()
	}
}
