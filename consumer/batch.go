// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"sync"
	"time"
)

// BatchReceiveCallback is invoked exactly once with either an error or
// the accumulated batch (possibly empty, if the timeout fired before
// any threshold was met).
type BatchReceiveCallback func(err error, batch []*Message)

// batchRequest is the single outstanding BatchReceiveAsync call.
// MergedQueue only ever has one batch consumer at a time, guarded by
// batchState's own lock rather than a separate per-request one.
type batchRequest struct {
	maxNumMessages int
	maxNumBytes    int64
	cb             BatchReceiveCallback
	timer          *time.Timer
}

type batchState struct {
	mu      sync.Mutex
	pending *batchRequest
}

func newBatchState() *batchState {
	return &batchState{}
}

// hasEnoughMessages reports whether the registered batch request's
// threshold is already satisfied by the queue's current size or byte
// count. True iff either threshold is positive and met.
func (b *batchState) hasEnoughMessages(queueSize int, queueBytes int64) bool {
	b.mu.Lock()
	req := b.pending
	b.mu.Unlock()
	if req == nil {
		return false
	}
	if req.maxNumMessages > 0 && queueSize >= req.maxNumMessages {
		return true
	}
	if req.maxNumBytes > 0 && queueBytes >= req.maxNumBytes {
		return true
	}
	return false
}

// BatchReceiveAsync accumulates up to maxNumMessages or maxNumBytes
// (either may be 0 to disable that threshold) and delivers the
// accumulated batch as one callback, either once a threshold is met or
// once timeout elapses, whichever comes first. A zero timeout disables
// the timer: the batch only ever completes once a threshold is met.
// Only one BatchReceiveAsync call may be outstanding at a time; a
// second call made while one is already pending is rejected
// immediately with ErrInvalidConfiguration so the first caller's
// callback is never silently orphaned.
func (c *MultiTopicConsumer) BatchReceiveAsync(maxNumMessages int, maxNumBytes int64, timeout time.Duration, cb BatchReceiveCallback) {
	if err := c.gate(); err != nil {
		cb(err, nil)
		return
	}
	if c.config.MessageListener != nil {
		cb(ErrInvalidConfiguration, nil)
		return
	}

	req := &batchRequest{maxNumMessages: maxNumMessages, maxNumBytes: maxNumBytes, cb: cb}

	c.batch.mu.Lock()
	if c.batch.pending != nil {
		c.batch.mu.Unlock()
		cb(ErrInvalidConfiguration, nil)
		return
	}
	c.batch.pending = req
	c.batch.mu.Unlock()

	if timeout > 0 {
		req.timer = time.AfterFunc(timeout, func() { c.notifyBatchPendingReceivedCallback() })
	}

	if c.batch.hasEnoughMessages(c.queue.size(), c.queue.incomingMessagesSize()) {
		c.listener.Post(func() { c.notifyBatchPendingReceivedCallback() })
	}
}

// notifyBatchPendingReceivedCallback drains MergedQueue into the
// registered batch request up to its thresholds and fires its callback
// exactly once on the listener executor. A second call (e.g. the timer
// firing after the threshold path already completed) is a no-op
// because the first call already cleared batch.pending.
func (c *MultiTopicConsumer) notifyBatchPendingReceivedCallback() {
	c.batch.mu.Lock()
	req := c.batch.pending
	c.batch.pending = nil
	c.batch.mu.Unlock()

	if req == nil {
		return
	}
	if req.timer != nil {
		req.timer.Stop()
	}

	var batch []*Message
	var bytesSoFar int64
	for {
		msg, ok := c.queue.popIf(func(m *Message) bool {
			if req.maxNumMessages > 0 && len(batch) >= req.maxNumMessages {
				return false
			}
			if req.maxNumBytes > 0 && bytesSoFar+int64(m.Len()) > req.maxNumBytes {
				return false
			}
			return true
		})
		if !ok {
			break
		}
		c.metrics.adjustQueueDepth(-1)
		c.messageProcessed(msg)
		batch = append(batch, msg)
		bytesSoFar += int64(msg.Len())

		if req.maxNumMessages > 0 && len(batch) >= req.maxNumMessages {
			break
		}
	}

	c.listener.Post(func() { req.cb(nil, batch) })
}

// failBatchReceive fails any outstanding batch request with
// ErrAlreadyClosed; called from failPendingReceiveCallback during
// close.
func (c *MultiTopicConsumer) failBatchReceive() {
	c.batch.mu.Lock()
	req := c.batch.pending
	c.batch.pending = nil
	c.batch.mu.Unlock()

	if req == nil {
		return
	}
	if req.timer != nil {
		req.timer.Stop()
	}
	c.listener.Post(func() { req.cb(ErrAlreadyClosed, nil) })
}
