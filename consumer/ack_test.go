// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readyConsumerWithChildren(t *testing.T, topics []string, partitions map[string]int) *MultiTopicConsumer {
	t.Helper()
	c, _ := newTestConsumer(t, topics, partitions)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestAcknowledgeAsyncRoutesToOwningChild(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})
	c.unacked = newNoopUnackedTracker()

	var got error
	c.AcknowledgeAsync(MessageID{TopicName: "t1", EntryID: 1}, func(err error) { got = err })
	require.NoError(t, got)

	child, _ := c.children.find("t1")
	assert.Len(t, child.(*fakeChildConsumer).acked, 1)
}

func TestAcknowledgeAsyncUnknownTopic(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.AcknowledgeAsync(MessageID{TopicName: "nope"}, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrOperationNotSupported)
}

func TestAcknowledgeAsyncNotReady(t *testing.T) {
	c, _ := newTestConsumer(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.AcknowledgeAsync(MessageID{TopicName: "t1"}, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrAlreadyClosed)
}

func TestAcknowledgeAsyncTimesOutOnSlowChild(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})
	c.config.AckTimeout = 10 * time.Millisecond

	child, _ := c.children.find("t1")
	fc := child.(*fakeChildConsumer)
	fc.mu.Lock()
	fc.delay = time.Second
	fc.mu.Unlock()

	done := make(chan error, 1)
	c.AcknowledgeAsync(MessageID{TopicName: "t1", EntryID: 1}, func(err error) { done <- err })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("acknowledge callback never fired")
	}
}

func TestAcknowledgeListAsyncGroupsByTopic(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1", "t2"}, map[string]int{"t1": 0, "t2": 0})

	var got error
	ids := []MessageID{
		{TopicName: "t1", EntryID: 1},
		{TopicName: "t1", EntryID: 2},
		{TopicName: "t2", EntryID: 1},
	}
	c.AcknowledgeListAsync(ids, func(err error) { got = err })
	require.NoError(t, got)

	t1, _ := c.children.find("t1")
	t2, _ := c.children.find("t2")
	assert.Len(t, t1.(*fakeChildConsumer).ackedLists, 1)
	assert.Len(t, t1.(*fakeChildConsumer).ackedLists[0], 2)
	assert.Len(t, t2.(*fakeChildConsumer).ackedLists, 1)
}

func TestAcknowledgeListAsyncRejectsMissingTopicName(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.AcknowledgeListAsync([]MessageID{{EntryID: 1}}, func(err error) { got = err })
	assert.ErrorIs(t, got, ErrOperationNotSupported)
}

func TestAcknowledgeCumulativeAsync(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.AcknowledgeCumulativeAsync(MessageID{TopicName: "t1", EntryID: 5}, func(err error) { got = err })
	require.NoError(t, got)

	child, _ := c.children.find("t1")
	assert.Len(t, child.(*fakeChildConsumer).ackedCum, 1)
}

func TestNegativeAcknowledgeIgnoresUnknownTopic(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})
	assert.NotPanics(t, func() {
		c.NegativeAcknowledge(MessageID{TopicName: "nope"})
	})
}

func TestNegativeAcknowledgeRoutesToOwningChild(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	c.NegativeAcknowledge(MessageID{TopicName: "t1", EntryID: 1})
	child, _ := c.children.find("t1")
	assert.Len(t, child.(*fakeChildConsumer).nacked, 1)
}

func TestRedeliverUnacknowledgedMessagesBroadcasts(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1", "t2"}, map[string]int{"t1": 0, "t2": 0})

	c.RedeliverUnacknowledgedMessages()

	t1, _ := c.children.find("t1")
	t2, _ := c.children.find("t2")
	assert.Len(t, t1.(*fakeChildConsumer).redelivered, 1)
	assert.Len(t, t2.(*fakeChildConsumer).redelivered, 1)
}

func TestRedeliverUnacknowledgedMessageSetDegradesForExclusive(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	c.RedeliverUnacknowledgedMessageSet([]MessageID{{TopicName: "t1", EntryID: 1}})

	child, _ := c.children.find("t1")
	// ConsumerExclusive degrades to the no-arg broadcast: a nil id set.
	require.Len(t, child.(*fakeChildConsumer).redelivered, 1)
	assert.Nil(t, child.(*fakeChildConsumer).redelivered[0])
}

func TestRedeliverUnacknowledgedMessageSetForSharedRoutesPerTopic(t *testing.T) {
	fl := &fakeLookup{partitions: map[string]int{"t1": 0}}
	cfg := NewConfig("t1").Apply(
		WithLookup(fl),
		WithChildConsumerFactory(fakeChildConsumerFactory),
		WithConsumerType(ConsumerShared),
	)
	c, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	c.RedeliverUnacknowledgedMessageSet([]MessageID{{TopicName: "t1", EntryID: 7}})

	child, _ := c.children.find("t1")
	fc := child.(*fakeChildConsumer)
	require.Len(t, fc.redelivered, 1)
	assert.Equal(t, []MessageID{{TopicName: "t1", EntryID: 7}}, fc.redelivered[0])
}
