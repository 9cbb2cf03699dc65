// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"log/slog"
	"sync/atomic"
)

// AcknowledgeAsync routes a single acknowledgement to the child that
// owns id.TopicName.
func (c *MultiTopicConsumer) AcknowledgeAsync(id MessageID, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	child, ok := c.children.find(id.TopicName)
	if !ok {
		c.logger.Warn("acknowledge: unknown topic", slog.String("topic", id.TopicName))
		cb(ErrOperationNotSupported)
		return
	}

	c.unacked.remove(id)
	c.metrics.recordAck(id.TopicName)
	child.AcknowledgeAsync(id, cb)
}

// AcknowledgeListAsync groups ids by TopicName and rendezvous on the
// distinct-topic count; the first per-topic failure fires cb exactly
// once via a sentinel that blocks every later completion from firing
// it again.
func (c *MultiTopicConsumer) AcknowledgeListAsync(ids []MessageID, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	grouped := make(map[string][]MessageID)
	for _, id := range ids {
		if id.TopicName == "" {
			cb(ErrOperationNotSupported)
			return
		}
		grouped[id.TopicName] = append(grouped[id.TopicName], id)
	}

	if len(grouped) == 0 {
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(grouped)))
	var fired atomic.Bool

	for topic, topicIDs := range grouped {
		child, ok := c.children.find(topic)
		if !ok {
			c.logger.Warn("acknowledge list: unknown topic", slog.String("topic", topic))
			c.finishAckList(&remaining, &fired, ErrOperationNotSupported, cb)
			continue
		}
		c.unacked.removeList(topicIDs)
		c.metrics.recordAck(topic)
		child.AcknowledgeListAsync(topicIDs, func(err error) {
			c.finishAckList(&remaining, &fired, err, cb)
		})
	}
}

func (c *MultiTopicConsumer) finishAckList(remaining *atomic.Int64, fired *atomic.Bool, err error, cb func(error)) {
	if err != nil && fired.CompareAndSwap(false, true) {
		cb(err)
		return
	}
	if remaining.Add(-1) == 0 && fired.CompareAndSwap(false, true) {
		cb(nil)
	}
}

// AcknowledgeCumulativeAsync acknowledges every message up to and
// including id on its owning child.
func (c *MultiTopicConsumer) AcknowledgeCumulativeAsync(id MessageID, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	child, ok := c.children.find(id.TopicName)
	if !ok {
		cb(ErrOperationNotSupported)
		return
	}

	c.unacked.removeMessagesTill(id)
	c.metrics.recordAck(id.TopicName)
	child.AcknowledgeCumulativeAsync(id, cb)
}

// NegativeAcknowledge is silently ignored for an unknown topic. Unlike
// the other ack-family operations it stays available even after the
// consumer leaves the Ready state, so a late nack from a slow consumer
// callback is never an error.
func (c *MultiTopicConsumer) NegativeAcknowledge(id MessageID) {
	child, ok := c.children.find(id.TopicName)
	if !ok {
		return
	}
	c.unacked.remove(id)
	child.NegativeAcknowledge(id)
}

// RedeliverUnacknowledgedMessages broadcasts redeliver to every child
// and clears the unacked tracker.
func (c *MultiTopicConsumer) RedeliverUnacknowledgedMessages() {
	c.children.forEach(func(_ string, child ChildConsumer) {
		child.RedeliverUnacknowledged(nil)
	})
	c.unacked.clear()
}

// RedeliverUnacknowledgedMessageSet only forwards a specific id set for
// Shared/KeyShared subscriptions; other subscription types degrade to
// the no-arg broadcast.
func (c *MultiTopicConsumer) RedeliverUnacknowledgedMessageSet(ids []MessageID) {
	if !c.config.ConsumerType.supportsPerMessageRedeliver() {
		c.RedeliverUnacknowledgedMessages()
		return
	}

	grouped := make(map[string][]MessageID)
	for _, id := range ids {
		grouped[id.TopicName] = append(grouped[id.TopicName], id)
	}
	c.redeliverGrouped(grouped)
}

func (c *MultiTopicConsumer) redeliverGrouped(grouped map[string][]MessageID) {
	for topic, topicIDs := range grouped {
		child, ok := c.children.find(topic)
		if !ok {
			c.logger.Warn("redeliver: unknown topic", slog.String("topic", topic))
			continue
		}
		child.RedeliverUnacknowledged(topicIDs)
	}
}
