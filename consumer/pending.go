// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"container/list"
	"sync"
)

// ReceiveCallback is invoked exactly once, either with a delivered
// message or with an error once the owning consumer can no longer
// satisfy the request (AlreadyClosed on shutdown).
type ReceiveCallback func(err error, msg *Message)

// pendingReceiveQueue is the FIFO of receiveAsync callbacks registered
// while MergedQueue was empty. DeliveryPath checks this queue first on
// every arriving message: a resident callback always wins over
// enqueueing into MergedQueue, so a message is delivered through
// exactly one of the two paths.
type pendingReceiveQueue struct {
	mu        sync.Mutex
	callbacks *list.List
}

func newPendingReceiveQueue() *pendingReceiveQueue {
	return &pendingReceiveQueue{callbacks: list.New()}
}

// enqueue appends cb to the tail. Called under the pending-receive
// lock by receiveAsync after a non-blocking MergedQueue pop misses.
func (q *pendingReceiveQueue) enqueue(cb ReceiveCallback) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.callbacks.PushBack(cb)
}

// pop removes and returns the oldest callback, if any.
func (q *pendingReceiveQueue) pop() (ReceiveCallback, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	front := q.callbacks.Front()
	if front == nil {
		return nil, false
	}
	q.callbacks.Remove(front)
	return front.Value.(ReceiveCallback), true
}

// drain removes and returns every resident callback in FIFO order,
// used by failPendingReceiveCallback during close.
func (q *pendingReceiveQueue) drain() []ReceiveCallback {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]ReceiveCallback, 0, q.callbacks.Len())
	for e := q.callbacks.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(ReceiveCallback))
	}
	q.callbacks.Init()
	return out
}

// size returns the number of resident callbacks.
func (q *pendingReceiveQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.callbacks.Len()
}
