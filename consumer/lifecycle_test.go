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

func TestCloseAsyncClosesEveryChild(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1", "t2"}, map[string]int{"t1": 0, "t2": 2})

	done := make(chan error, 1)
	c.CloseAsync(func(err error) { done <- err })

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("close callback never fired")
	}

	assert.Equal(t, StateClosed, c.state.get())
	assert.Equal(t, 0, c.children.size())
}

func TestCloseAsyncIsIdempotent(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	first := make(chan error, 1)
	c.CloseAsync(func(err error) { first <- err })
	require.NoError(t, <-first)

	second := make(chan error, 1)
	c.CloseAsync(func(err error) { second <- err })

	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second close callback never fired")
	}
}

func TestCloseAsyncWithNoChildren(t *testing.T) {
	c, _ := newTestConsumer(t, nil, nil)
	require.NoError(t, c.Start(context.Background()))

	done := make(chan error, 1)
	c.CloseAsync(func(err error) { done <- err })
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, c.state.get())
}

func TestCloseAsyncFailsPendingReceive(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	pendingDone := make(chan error, 1)
	c.ReceiveAsync(func(err error, msg *Message) { pendingDone <- err })

	closeDone := make(chan error, 1)
	c.CloseAsync(func(err error) { closeDone <- err })
	require.NoError(t, <-closeDone)

	select {
	case err := <-pendingDone:
		assert.ErrorIs(t, err, ErrAlreadyClosed)
	case <-time.After(time.Second):
		t.Fatal("pending receive never failed on close")
	}
}

func TestCloseAsyncTimesOutOnSlowChild(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})
	c.config.AckTimeout = 10 * time.Millisecond

	child, _ := c.children.find("t1")
	fc := child.(*fakeChildConsumer)
	fc.mu.Lock()
	fc.delay = time.Second
	fc.mu.Unlock()

	done := make(chan error, 1)
	c.CloseAsync(func(err error) { done <- err })

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrTimeout)
	case <-time.After(time.Second):
		t.Fatal("close callback never fired")
	}
}

func TestUnsubscribeAsyncSucceeds(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.UnsubscribeAsync(func(err error) { got = err })
	require.NoError(t, got)
	assert.Equal(t, StateClosed, c.state.get())
}

func TestUnsubscribeAsyncNotLive(t *testing.T) {
	c, _ := newTestConsumer(t, []string{"t1"}, map[string]int{"t1": 0})
	c.state.set(StateClosed)

	var got error
	c.UnsubscribeAsync(func(err error) { got = err })
	assert.ErrorIs(t, got, ErrAlreadyClosed)
}

func TestUnsubscribeOneTopicAsyncRemovesOnlyThatTopic(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1", "t2"}, map[string]int{"t1": 3, "t2": 0})

	var got error
	c.UnsubscribeOneTopicAsync("t1", func(err error) { got = err })
	require.NoError(t, got)

	assert.Equal(t, 1, c.children.size())
	_, ok := c.children.find("t2")
	assert.True(t, ok)
	_, stillKnown := c.partitions.get("t1")
	assert.False(t, stillKnown)
	assert.Equal(t, 1, c.numberTopicPartitions())
}

func TestUnsubscribeOneTopicAsyncUnknownTopic(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.UnsubscribeOneTopicAsync("nope", func(err error) { got = err })
	assert.ErrorIs(t, got, ErrTopicNotFound)
}

func TestUnsubscribeOneTopicAsyncNotReady(t *testing.T) {
	c, _ := newTestConsumer(t, []string{"t1"}, map[string]int{"t1": 0})

	var got error
	c.UnsubscribeOneTopicAsync("t1", func(err error) { got = err })
	assert.ErrorIs(t, got, ErrAlreadyClosed)
}

func TestUnsubscribeOneTopicAsyncFiresCallbackExactlyOnce(t *testing.T) {
	c := readyConsumerWithChildren(t, []string{"t1"}, map[string]int{"t1": 4})

	var calls int
	done := make(chan struct{}, 1)
	c.UnsubscribeOneTopicAsync("t1", func(err error) {
		calls++
		done <- struct{}{}
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unsubscribe callback never fired")
	}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, calls)
}
