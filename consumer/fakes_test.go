// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"sync"
	"time"
)

// fakeChildConsumer implements ChildConsumer for tests. Callbacks fire
// synchronously unless a test arranges otherwise through the delay
// field.
type fakeChildConsumer struct {
	mu sync.Mutex

	partitionName string
	topicName     string
	partitionIdx  int

	startErr   error
	started    bool
	closed     bool
	unsubbed   bool
	connected  bool
	permits    int
	acked      []MessageID
	ackedLists [][]MessageID
	ackedCum   []MessageID
	nacked     []MessageID
	redelivered [][]MessageID
	seeks      []MessageID
	seekTimes  []int64
	paused     bool

	statsErr error
	stats    BrokerConsumerStats

	hasMessageErr       error
	hasMessageAvailable bool

	// delay, when positive, defers the CloseAsync, UnsubscribeAsync,
	// AcknowledgeAsync, and SeekAsync callbacks by that much, simulating
	// a slow or unresponsive child for AckTimeout tests.
	delay time.Duration
}

// afterDelay invokes fn synchronously, or after f.delay if positive.
func (f *fakeChildConsumer) afterDelay(fn func()) {
	f.mu.Lock()
	d := f.delay
	f.mu.Unlock()
	if d <= 0 {
		fn()
		return
	}
	time.AfterFunc(d, fn)
}

func newFakeChildConsumer(partitionName, topicName string) *fakeChildConsumer {
	return &fakeChildConsumer{
		partitionName: partitionName,
		topicName:     topicName,
		connected:     true,
	}
}

func (f *fakeChildConsumer) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeChildConsumer) CloseAsync(cb func(error)) {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.afterDelay(func() { cb(nil) })
}

func (f *fakeChildConsumer) UnsubscribeAsync(cb func(error)) {
	f.mu.Lock()
	f.unsubbed = true
	f.mu.Unlock()
	f.afterDelay(func() { cb(nil) })
}

func (f *fakeChildConsumer) AcknowledgeAsync(id MessageID, cb func(error)) {
	f.mu.Lock()
	f.acked = append(f.acked, id)
	f.mu.Unlock()
	f.afterDelay(func() { cb(nil) })
}

func (f *fakeChildConsumer) AcknowledgeListAsync(ids []MessageID, cb func(error)) {
	f.mu.Lock()
	f.ackedLists = append(f.ackedLists, ids)
	f.mu.Unlock()
	cb(nil)
}

func (f *fakeChildConsumer) AcknowledgeCumulativeAsync(id MessageID, cb func(error)) {
	f.mu.Lock()
	f.ackedCum = append(f.ackedCum, id)
	f.mu.Unlock()
	cb(nil)
}

func (f *fakeChildConsumer) NegativeAcknowledge(id MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, id)
}

func (f *fakeChildConsumer) RedeliverUnacknowledged(ids []MessageID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redelivered = append(f.redelivered, ids)
}

func (f *fakeChildConsumer) SeekAsync(id MessageID, cb func(error)) {
	f.mu.Lock()
	f.seeks = append(f.seeks, id)
	f.mu.Unlock()
	f.afterDelay(func() { cb(nil) })
}

func (f *fakeChildConsumer) SeekByTimeAsync(timestampMs int64, cb func(error)) {
	f.mu.Lock()
	f.seekTimes = append(f.seekTimes, timestampMs)
	f.mu.Unlock()
	cb(nil)
}

func (f *fakeChildConsumer) PauseMessageListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = true
}

func (f *fakeChildConsumer) ResumeMessageListener() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paused = false
}

func (f *fakeChildConsumer) SendFlowPermits(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permits += n
}

func (f *fakeChildConsumer) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeChildConsumer) HasMessageAvailableAsync(cb func(error, bool)) {
	f.mu.Lock()
	err, has := f.hasMessageErr, f.hasMessageAvailable
	f.mu.Unlock()
	cb(err, has)
}

func (f *fakeChildConsumer) IncreaseAvailablePermits(msg *Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.permits++
}

func (f *fakeChildConsumer) SetPartitionIndex(i int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.partitionIdx = i
}

func (f *fakeChildConsumer) GetBrokerConsumerStats(ctx context.Context) (BrokerConsumerStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats, f.statsErr
}

func (f *fakeChildConsumer) PartitionName() string { return f.partitionName }
func (f *fakeChildConsumer) TopicName() string     { return f.topicName }

// fakeLookup implements Lookup for tests.
type fakeLookup struct {
	mu         sync.Mutex
	partitions map[string]int
	err        error
	calls      int
}

func (l *fakeLookup) GetPartitionMetadata(ctx context.Context, topic string) (PartitionMetadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return PartitionMetadata{}, l.err
	}
	return PartitionMetadata{Partitions: l.partitions[topic]}, nil
}

// fakeChildConsumerFactory builds fakeChildConsumers named the way
// SubscribeCoordinator keys ChildConsumerMap: the bare topic for a
// non-partitioned topic, "topic-partition-<i>" otherwise.
func fakeChildConsumerFactory(topic string, partitionIndex int, receiverQueueSize int) (ChildConsumer, error) {
	name := topic
	if partitionIndex >= 0 {
		name = partitionName(topic, partitionIndex)
	}
	return newFakeChildConsumer(name, topic), nil
}
