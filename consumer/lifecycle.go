// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"log/slog"
	"sync/atomic"
)

// UnsubscribeAsync unsubscribes every child consumer. On full success
// it runs internalShutdown and leaves the consumer Closed; on any
// child failure it sets state Failed but otherwise leaves teardown to
// a subsequent CloseAsync, mirroring how a failed subscribe also
// leaves cleanup to CloseAsync rather than doing it inline.
func (c *MultiTopicConsumer) UnsubscribeAsync(cb func(error)) {
	if !c.state.isLive() {
		cb(ErrAlreadyClosed)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)
	c.state.set(StateClosing)

	children := c.children.snapshot()
	if len(children) == 0 {
		c.state.set(StateClosed)
		c.internalShutdown()
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)))
	var failed atomic.Bool

	for _, entry := range children {
		entry := entry
		entry.child.UnsubscribeAsync(func(err error) {
			if err != nil {
				failed.Store(true)
				c.logger.Error("unsubscribe failed", slog.String("partition", entry.name), slog.Any("err", err))
			}
			if remaining.Add(-1) != 0 {
				return
			}

			if failed.Load() {
				c.state.set(StateFailed)
				cb(ErrUnknownError)
				return
			}

			c.state.set(StateClosed)
			c.internalShutdown()
			cb(nil)
		})
	}
}

// UnsubscribeOneTopicAsync unsubscribes every partition of one topic
// and removes it from the consumer, without affecting any other
// topic. The terminal callback fires exactly once, after every
// partition has responded, whether or not any partition was missing
// from ChildConsumerMap.
func (c *MultiTopicConsumer) UnsubscribeOneTopicAsync(topic string, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	partitions, ok := c.partitions.get(topic)
	if !ok {
		cb(ErrTopicNotFound)
		return
	}

	var keys []string
	for _, entry := range c.children.snapshot() {
		if entry.child.TopicName() == topic {
			keys = append(keys, entry.name)
		}
	}
	if len(keys) == 0 {
		cb(ErrTopicNotFound)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(keys)))
	var failed atomic.Bool
	var fired atomic.Bool

	for _, key := range keys {
		key := key
		child, ok := c.children.find(key)
		if !ok {
			if remaining.Add(-1) == 0 && fired.CompareAndSwap(false, true) {
				c.finishUnsubscribeOneTopic(topic, partitions, failed.Load(), cb)
			}
			continue
		}

		child.UnsubscribeAsync(func(err error) {
			if err != nil {
				failed.Store(true)
			} else {
				c.children.remove(key)
				c.permits.remove(key)
				child.PauseMessageListener()
			}
			if remaining.Add(-1) == 0 && fired.CompareAndSwap(false, true) {
				c.finishUnsubscribeOneTopic(topic, partitions, failed.Load(), cb)
			}
		})
	}
}

func (c *MultiTopicConsumer) finishUnsubscribeOneTopic(topic string, partitions int, failed bool, cb func(error)) {
	c.topicPartitions.Add(int32(-partitions))
	c.partitions.remove(topic)
	c.unacked.removeTopicMessage(topic)

	if failed {
		cb(ErrUnknownError)
		return
	}
	cb(nil)
}

// CloseAsync tears the whole consumer down: idempotent, since a second
// call while Closing/Closed fires cb(nil) immediately without touching
// any child a second time.
func (c *MultiTopicConsumer) CloseAsync(cb func(error)) {
	if !c.closing.CompareAndSwap(false, true) {
		cb(nil)
		return
	}
	if c.state.isClosingOrClosed() {
		cb(nil)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)
	c.state.set(StateClosing)

	c.stopPartitionRefresher()

	entries := c.children.move()
	for _, entry := range entries {
		c.permits.remove(entry.name)
	}
	c.topicPartitions.Store(0)
	c.failPendingReceiveCallback()

	if len(entries) == 0 {
		c.state.set(StateClosed)
		c.internalShutdown()
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(entries)))

	for _, entry := range entries {
		entry := entry
		entry.child.CloseAsync(func(err error) {
			if err != nil {
				c.logger.Error("child close failed", slog.String("partition", entry.name), slog.Any("err", err))
			}
			c.metrics.adjustActiveChildren(-1)
			if remaining.Add(-1) != 0 {
				return
			}
			c.state.set(StateClosed)
			c.internalShutdown()
			cb(nil)
		})
	}
}

// internalShutdown releases every resource the consumer owns. It is
// idempotent: repeated calls (e.g. from both the last child-close
// callback and a racing second CloseAsync) are harmless because every
// step here is itself idempotent.
func (c *MultiTopicConsumer) internalShutdown() {
	c.stopPartitionRefresher()
	c.queue.close()
	c.queue.drain()
	c.partitions.clear()
	c.unacked.stop()
	c.unacked.clear()
	c.children.move()

	// Closed on its own goroutine: internalShutdown can itself run as a
	// job on this same executor (a failed subscribe closes from inside
	// a listener-posted callback), and Close blocks on that executor's
	// own workers draining.
	go c.listener.Close()

	if c.createdOnce.CompareAndSwap(false, true) {
		if failed, ok := c.failedResult.Load().(error); ok && failed != nil {
			c.created <- failed
		} else {
			c.created <- ErrAlreadyClosed
		}
	}
}
