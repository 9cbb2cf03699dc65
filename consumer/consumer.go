// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package consumer implements a client-side multi-topic, multi-partition
// consumer that fans a logical subscription out across one ChildConsumer
// per partition and merges their streams back into a single receive
// surface, the way a Pulsar-style client multiplexes partitioned topics
// behind one Consumer handle.
package consumer

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/absmach/fluxmq-consumer/internal/dispatch"
)

// MultiTopicConsumer fans a subscription out across every partition of
// every configured topic and merges delivery back into one handle.
type MultiTopicConsumer struct {
	name   string
	config *Config
	logger *slog.Logger

	state      *stateManager
	children   *childConsumerMap
	partitions *partitionTable
	queue      *mergedQueue
	pending    *pendingReceiveQueue
	unacked    UnackedTracker
	permits    *permitLimiter
	lookup     *lookupBreaker
	metrics    *Metrics
	listener   *dispatch.Executor

	topicPartitions atomic.Int32

	failedResult atomic.Value // error

	created     chan error
	createdOnce atomic.Bool

	duringSeek atomic.Bool

	batch *batchState

	refresherCancel context.CancelFunc

	closing atomic.Bool
}

// New constructs a consumer from config without starting it. Call
// Start to fan out subscribes for every configured topic.
func New(config *Config) (*MultiTopicConsumer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &MultiTopicConsumer{
		name:       uuid.New().String(),
		config:     config,
		logger:     config.logger(),
		state:      newStateManager(),
		children:   newChildConsumerMap(),
		partitions: newPartitionTable(),
		queue:      newMergedQueue(),
		pending:    newPendingReceiveQueue(),
		permits:    newPermitLimiter(),
		metrics:    config.Metrics,
		listener:   dispatch.New(listenerWorkerCount, listenerQueueDepth, config.logger()),
		created:    make(chan error, 1),
	}

	if config.Lookup != nil {
		c.lookup = newLookupBreaker(config.Lookup, config.breakerSettings)
	}

	if config.UnAckedMessagesTimeoutMs > 0 {
		timeout := msToDuration(config.UnAckedMessagesTimeoutMs)
		tick := msToDuration(config.TickDurationInMs)
		c.unacked = newTimedUnackedTracker(timeout, tick, c.onUnackedExpired)
	} else {
		c.unacked = newNoopUnackedTracker()
	}
	c.unacked.start()

	c.batch = newBatchState()

	return c, nil
}

const (
	listenerWorkerCount = 4
	listenerQueueDepth  = 1024
)

// Name returns the identity New assigns to the consumer, a random UUID.
// The package's own log records and metrics do not include it.
func (c *MultiTopicConsumer) Name() string { return c.name }

// gate rejects the call with ErrAlreadyClosed unless the consumer is
// Ready. Called first by every public API except the handful that stay
// available after close by design, such as NegativeAcknowledge.
func (c *MultiTopicConsumer) gate() error {
	if !c.state.isReady() {
		return ErrAlreadyClosed
	}
	return nil
}

func (c *MultiTopicConsumer) onUnackedExpired(topic string, ids []MessageID) {
	c.redeliverGrouped(map[string][]MessageID{topic: ids})
}
