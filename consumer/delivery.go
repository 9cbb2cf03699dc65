// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"log/slog"
	"time"
)

// messageReceived is the fast path a ChildConsumer's own listener
// thread calls on every delivered message. A message is delivered
// through exactly one of {pending-receive, MergedQueue, batch, user
// listener} — never more than one, never zero, unless a seek drops it.
func (c *MultiTopicConsumer) messageReceived(child ChildConsumer, msg *Message) {
	if c.duringSeek.Load() {
		return
	}

	msg.ID.TopicName = child.PartitionName()
	msg.queuedAt = time.Now()
	msg.child = newWeakChild(child, c.children.liveness(child.PartitionName()))

	if cb, ok := c.pending.pop(); ok {
		c.listener.Post(func() {
			c.messageProcessed(msg)
			c.metrics.recordDelivered("pending-receive")
			cb(nil, msg)
		})
		return
	}

	c.queue.push(msg)
	c.metrics.adjustQueueDepth(1)
	c.metrics.recordDelivered("merged-queue")

	if c.batch.hasEnoughMessages(c.queue.size(), c.queue.incomingMessagesSize()) {
		c.listener.Post(func() { c.notifyBatchPendingReceivedCallback() })
	}

	if c.config.MessageListener != nil {
		c.listener.Post(c.dispatchToListener)
	}
}

// dispatchToListener pops one message and hands it to the configured
// user listener, recovering and logging any panic from user code so
// one bad listener invocation never takes a worker down.
func (c *MultiTopicConsumer) dispatchToListener() {
	msg, ok := c.queue.tryPop()
	if !ok {
		return
	}
	c.metrics.adjustQueueDepth(-1)

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message listener panicked", slog.Any("recovered", r))
		}
	}()
	c.messageProcessed(msg)
	c.config.MessageListener(msg)
}

// Receive blocks until a message is available, timeout elapses (a
// positive timeout), or the queue closes. A zero timeout blocks
// indefinitely.
func (c *MultiTopicConsumer) Receive(timeout time.Duration) (*Message, error) {
	if err := c.gate(); err != nil {
		return nil, err
	}
	if c.config.MessageListener != nil {
		return nil, ErrInvalidConfiguration
	}

	msg, ok := c.queue.popWait(timeout)
	if !ok {
		if !c.state.isLive() {
			return nil, ErrAlreadyClosed
		}
		return nil, ErrTimeout
	}
	c.metrics.adjustQueueDepth(-1)
	c.messageProcessed(msg)
	return msg, nil
}

// ReceiveAsync never blocks: it fires cb synchronously on a queue hit,
// or enqueues cb into PendingReceiveQueue on a miss.
func (c *MultiTopicConsumer) ReceiveAsync(cb ReceiveCallback) {
	if err := c.gate(); err != nil {
		cb(err, nil)
		return
	}

	if msg, ok := c.queue.tryPop(); ok {
		c.metrics.adjustQueueDepth(-1)
		c.messageProcessed(msg)
		cb(nil, msg)
		return
	}

	c.pending.enqueue(cb)
}

// failPendingReceiveCallback closes MergedQueue and fails every
// resident pending-receive and batch-receive callback with
// ErrAlreadyClosed, posted on the listener executor.
func (c *MultiTopicConsumer) failPendingReceiveCallback() {
	c.queue.close()
	for _, cb := range c.pending.drain() {
		cb := cb
		c.listener.Post(func() { cb(ErrAlreadyClosed, nil) })
	}
	c.failBatchReceive()
}

// messageProcessed accounts for a message leaving MergedQueue (or
// being handed straight to a pending receive/listener): it tracks the
// id as unacked, records how long the message sat queued before this
// point, and replenishes one flow-control permit to the originating
// child, smoothed through the per-partition permit limiter. The
// replenish itself may run later than this call returns; it still
// re-checks the child's liveness at fire time so a permit deferred past
// the child's teardown is abandoned instead of reaching a dead handle.
func (c *MultiTopicConsumer) messageProcessed(msg *Message) {
	c.unacked.add(msg.ID)
	c.metrics.recordQueueWait(float64(time.Since(msg.queuedAt).Milliseconds()))

	child := msg.child.upgrade()
	if child == nil {
		return
	}
	c.permits.replenish(msg.ID.TopicName, func() {
		if child := msg.child.upgrade(); child != nil {
			child.IncreaseAvailablePermits(msg)
		}
	})
}
