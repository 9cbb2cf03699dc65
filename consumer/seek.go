// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "sync/atomic"

// beforeSeek pauses every child listener, clears the unacked tracker,
// and drops any message already resident in MergedQueue: none of it is
// valid once the cursor moves. duringSeek is set first so a message
// racing in through messageReceived during the drain is dropped rather
// than resurfacing after the seek completes.
func (c *MultiTopicConsumer) beforeSeek() {
	c.duringSeek.Store(true)
	c.children.forEach(func(_ string, child ChildConsumer) {
		child.PauseMessageListener()
	})
	c.unacked.clear()
	c.queue.drain()
}

// afterSeek clears duringSeek and resumes every child listener on the
// listener executor, mirroring how messages are normally dispatched.
func (c *MultiTopicConsumer) afterSeek() {
	c.duringSeek.Store(false)
	c.listener.Post(func() {
		c.children.forEach(func(_ string, child ChildConsumer) {
			child.ResumeMessageListener()
		})
	})
}

// seekAllAsync broadcasts id to every child and rendezvous on the full
// child count, firing cb exactly once.
func (c *MultiTopicConsumer) seekAllAsync(id MessageID, cb func(error)) {
	children := c.children.snapshot()
	if len(children) == 0 {
		c.afterSeek()
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)))
	var firstErr atomic.Value

	for _, entry := range children {
		entry := entry
		entry.child.SeekAsync(id, func(err error) {
			c.onSeekChildDone(err, &remaining, &firstErr, cb)
		})
	}
}

func (c *MultiTopicConsumer) onSeekChildDone(err error, remaining *atomic.Int64, firstErr *atomic.Value, cb func(error)) {
	if err != nil {
		firstErr.CompareAndSwap(nil, err)
	}
	if remaining.Add(-1) != 0 {
		return
	}
	c.afterSeek()
	if stored, ok := firstErr.Load().(error); ok && stored != nil {
		cb(stored)
		return
	}
	cb(nil)
}

// SeekAsync repositions the cursor. id == EarliestMessageID or
// LatestMessageID broadcasts to every child; any other id is routed to
// the single child owning id.TopicName.
func (c *MultiTopicConsumer) SeekAsync(id MessageID, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	if id.IsEarliestOrLatest() {
		c.beforeSeek()
		c.metrics.recordSeek()
		c.seekAllAsync(id, cb)
		return
	}

	child, ok := c.children.find(id.TopicName)
	if !ok {
		cb(ErrOperationNotSupported)
		return
	}

	c.beforeSeek()
	c.metrics.recordSeek()
	child.SeekAsync(id, func(err error) {
		c.afterSeek()
		cb(err)
	})
}

// SeekByTimeAsync always broadcasts, since a timestamp has no single
// owning child.
func (c *MultiTopicConsumer) SeekByTimeAsync(timestampMs int64, cb func(error)) {
	if err := c.gate(); err != nil {
		cb(err)
		return
	}
	cb = guardWithTimeout(c.config.AckTimeout, cb)

	c.beforeSeek()
	c.metrics.recordSeek()

	children := c.children.snapshot()
	if len(children) == 0 {
		c.afterSeek()
		cb(nil)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)))
	var firstErr atomic.Value

	for _, entry := range children {
		entry := entry
		entry.child.SeekByTimeAsync(timestampMs, func(err error) {
			c.onSeekChildDone(err, &remaining, &firstErr, cb)
		})
	}
}
