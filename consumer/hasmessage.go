// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "sync/atomic"

// HasMessageAvailableAsync reports whether a message is currently
// available without consuming it. It short-circuits true when
// MergedQueue is already non-empty; otherwise it fans the same query
// out to every child and reports true if any of them has a message
// buffered ahead of MergedQueue, or if MergedQueue itself filled in
// the meantime. The first child failure short-circuits cb with that
// failure and suppresses every later completion.
//
// incomingMessagesSize is read without synchronization both here and
// at the final aggregation step: a seek drain racing this call can
// make it observe a stale non-zero size, so it may answer true right
// as the queue is being emptied. That is accepted rather than fixed,
// since a subsequent Receive always observes the drained state.
func (c *MultiTopicConsumer) HasMessageAvailableAsync(cb func(error, bool)) {
	if c.queue.incomingMessagesSize() > 0 {
		cb(nil, true)
		return
	}

	children := c.children.snapshot()
	if len(children) == 0 {
		cb(nil, false)
		return
	}

	var remaining atomic.Int64
	remaining.Store(int64(len(children)))
	var done atomic.Bool
	var hasMessage atomic.Bool

	for _, entry := range children {
		entry := entry
		entry.child.HasMessageAvailableAsync(func(err error, has bool) {
			if done.Load() {
				return
			}

			if err != nil {
				if done.CompareAndSwap(false, true) {
					cb(err, false)
				}
				return
			}

			if has {
				hasMessage.Store(true)
			}

			if remaining.Add(-1) != 0 {
				return
			}
			if done.CompareAndSwap(false, true) {
				cb(nil, hasMessage.Load() || c.queue.incomingMessagesSize() > 0)
			}
		})
	}
}
