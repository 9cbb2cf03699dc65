// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// numberTopicPartitions returns the sum of every topic's child count.
func (c *MultiTopicConsumer) numberTopicPartitions() int {
	return int(c.topicPartitions.Load())
}

// partitionName returns the broker partition-name convention key for
// partition i of topic.
func partitionName(topic string, i int) string {
	return fmt.Sprintf("%s-partition-%d", topic, i)
}

// validateTopicName rejects the empty topic name; full topic-name
// parsing belongs to the external topic-name collaborator, out of
// scope here.
func validateTopicName(topic string) error {
	if topic == "" {
		return ErrInvalidTopicName
	}
	return nil
}

// Start fans out subscribeOneTopicAsync for every topic in config and
// blocks until every topic has reported, returning nil or the first
// failure. On failure the consumer is then closed with CloseAsync; that
// teardown may still be in progress when Start returns.
func (c *MultiTopicConsumer) Start(ctx context.Context) error {
	topics := c.config.Topics
	if len(topics) == 0 {
		c.state.transition(StatePending, StateReady)
		return nil
	}

	var needCreate atomic.Int64
	needCreate.Store(int64(len(topics)))

	for _, topic := range topics {
		topic := topic
		c.subscribeOneTopicAsync(ctx, topic, func(err error) {
			c.onTopicSubscribed(ctx, err, &needCreate)
		})
	}

	return <-c.created
}

func (c *MultiTopicConsumer) onTopicSubscribed(ctx context.Context, err error, needCreate *atomic.Int64) {
	if err != nil {
		c.captureFirstFailure(err)
	}

	if needCreate.Add(-1) != 0 {
		return
	}

	if failed, ok := c.failedResult.Load().(error); ok && failed != nil {
		c.state.transition(StatePending, StateFailed)
		c.completeCreated(failed)
		c.CloseAsync(func(error) {})
		return
	}

	c.state.transition(StatePending, StateReady)
	c.completeCreated(nil)

	if c.config.MessageListener != nil && !c.config.StartPaused {
		c.children.forEach(func(_ string, child ChildConsumer) {
			child.ResumeMessageListener()
		})
	}

	c.startPartitionRefresher(ctx)
}

// captureFirstFailure records err as failedResult iff no failure has
// been captured yet, so a second, racing failure never overwrites the
// first cause.
func (c *MultiTopicConsumer) captureFirstFailure(err error) {
	c.failedResult.CompareAndSwap(nil, err)
}

func (c *MultiTopicConsumer) completeCreated(err error) {
	if c.createdOnce.CompareAndSwap(false, true) {
		c.created <- err
	}
}

// subscribeOneTopicAsync resolves topic's partition count (from the
// partition table if already known, otherwise via a fresh lookup) and
// creates and starts its child consumers, invoking cb with nil on
// success or a result-code error on failure.
func (c *MultiTopicConsumer) subscribeOneTopicAsync(ctx context.Context, topic string, cb func(error)) {
	if err := validateTopicName(topic); err != nil {
		cb(err)
		return
	}
	if !c.state.isLive() {
		cb(ErrAlreadyClosed)
		return
	}

	partitions, ok := c.partitions.get(topic)
	if !ok {
		meta, err := c.lookup.getPartitionMetadata(ctx, topic)
		if err != nil {
			cb(err)
			return
		}
		partitions = meta.Partitions
	}

	c.subscribePartitions(ctx, topic, 0, partitions, cb)
}

// subscribePartitions creates and starts child consumers [from,
// childCount) of topic, where total is the just-discovered or
// newly-grown partition count (0 meaning non-partitioned, which
// creates exactly one child with partitionIndex -1). The receiver
// queue share is computed against total, not childCount, so a later
// partition-count increase keeps dividing the same total budget
// instead of re-dividing against the already-clamped internal count.
func (c *MultiTopicConsumer) subscribePartitions(ctx context.Context, topic string, from, total int, cb func(error)) {
	if !c.state.isLive() {
		cb(ErrAlreadyClosed)
		return
	}

	queueSize := c.config.childReceiverQueueSize(total)
	startPaused := c.config.StartPaused || c.config.MessageListener != nil

	childCount := total
	if childCount == 0 {
		childCount = 1
	}

	count := childCount - from
	if count <= 0 {
		c.partitions.set(topic, childCount)
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(count))
	var firstErr atomic.Value

	for i := from; i < childCount; i++ {
		i := i
		partitionIndex := i
		if total == 0 {
			partitionIndex = -1
		}

		child, err := c.config.NewChildConsumer(topic, partitionIndex, queueSize)
		if err != nil {
			c.onPartitionStarted(ErrConnectError, &remaining, &firstErr, topic, childCount, count, cb)
			continue
		}

		key := topic
		if partitionIndex >= 0 {
			key = partitionName(topic, i)
		}

		c.children.insert(key, child)
		if startPaused {
			child.PauseMessageListener()
		}
		c.metrics.adjustActiveChildren(1)

		c.listener.Post(func() {
			startErr := child.Start(ctx)
			if startErr != nil {
				c.children.remove(key)
				c.permits.remove(key)
				c.metrics.adjustActiveChildren(-1)
				c.logger.Error("child consumer failed to start",
					slog.String("topic", topic), slog.String("partition", key), slog.Any("err", startErr))
				c.onPartitionStarted(ErrConnectError, &remaining, &firstErr, topic, childCount, count, cb)
				return
			}
			c.onPartitionStarted(nil, &remaining, &firstErr, topic, childCount, count, cb)
		})
	}
}

func (c *MultiTopicConsumer) onPartitionStarted(err error, remaining *atomic.Int64, firstErr *atomic.Value, topic string, childCount, added int, cb func(error)) {
	if err != nil {
		if !c.state.isLive() {
			firstErr.CompareAndSwap(nil, ErrAlreadyClosed)
		} else {
			firstErr.CompareAndSwap(nil, err)
		}
	}

	if remaining.Add(-1) != 0 {
		return
	}

	if stored, ok := firstErr.Load().(error); ok && stored != nil {
		cb(stored)
		return
	}

	c.partitions.set(topic, childCount)
	c.topicPartitions.Add(int32(added))
	cb(nil)
}
