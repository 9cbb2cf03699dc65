// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"container/list"
	"sync"
	"time"
)

// mergedQueue is the blocking FIFO that merges every child consumer's
// stream into one queue for the synchronous/asynchronous receive paths.
// It has no capacity limit: push never blocks or rejects, so how many
// messages are resident depends only on how many the children deliver
// ahead of consumption. Its job is the blocking pop semantics
// Receive(timeout) needs and the byte-size bookkeeping invariant
// (incomingMessagesSize == sum of resident message lengths).
type mergedQueue struct {
	mu        sync.Mutex
	messages  *list.List
	sizeBytes int64
	closed    bool
	waitCh    chan struct{} // closed and replaced to broadcast a wakeup
}

func newMergedQueue() *mergedQueue {
	return &mergedQueue{
		messages: list.New(),
		waitCh:   make(chan struct{}),
	}
}

// push appends msg to the tail and wakes every waiter.
func (q *mergedQueue) push(msg *Message) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.messages.PushBack(msg)
	q.sizeBytes += int64(msg.Len())
	q.wake()
}

// wake broadcasts to every popWait goroutine and installs a fresh
// channel for the next generation of waiters. Must be called with mu held.
func (q *mergedQueue) wake() {
	close(q.waitCh)
	q.waitCh = make(chan struct{})
}

// tryPop pops the head without blocking.
func (q *mergedQueue) tryPop() (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.popLocked()
}

func (q *mergedQueue) popLocked() (*Message, bool) {
	front := q.messages.Front()
	if front == nil {
		return nil, false
	}
	q.messages.Remove(front)
	msg := front.Value.(*Message)
	q.sizeBytes -= int64(msg.Len())
	return msg, true
}

// popWait blocks until a message is available, the queue is closed, or
// timeout elapses (timeout <= 0 means block indefinitely).
func (q *mergedQueue) popWait(timeout time.Duration) (*Message, bool) {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		q.mu.Lock()
		if msg, ok := q.popLocked(); ok {
			q.mu.Unlock()
			return msg, true
		}
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		ch := q.waitCh
		q.mu.Unlock()

		if timeout <= 0 {
			<-ch
			continue
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return nil, false
		}
	}
}

// popIf pops the head only if peek returns true for it. Used by
// BatchReceive to drain messages while the accumulating batch still
// has room.
func (q *mergedQueue) popIf(peek func(*Message) bool) (*Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.messages.Front()
	if front == nil {
		return nil, false
	}
	msg := front.Value.(*Message)
	if !peek(msg) {
		return nil, false
	}
	q.messages.Remove(front)
	q.sizeBytes -= int64(msg.Len())
	return msg, true
}

// drain removes and returns every resident message, used by the seek
// barrier to clear the queue before a new cursor position is honored.
func (q *mergedQueue) drain() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, 0, q.messages.Len())
	for e := q.messages.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Message))
	}
	q.messages.Init()
	q.sizeBytes = 0
	return out
}

// size returns the number of resident messages.
func (q *mergedQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.messages.Len()
}

// incomingMessagesSize returns the sum of resident message byte lengths.
func (q *mergedQueue) incomingMessagesSize() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.sizeBytes
}

// close marks the queue closed and wakes every waiter so pending pops
// return immediately with ok=false.
func (q *mergedQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.wake()
}
