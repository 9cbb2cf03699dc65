// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "errors"

// Result-code sentinel errors for the multi-topic consumer. Callers
// compare with errors.Is; these are never wrapped with additional
// context when returned across an API boundary so that pointer
// identity from errors.Is keeps working after %w-wrapping elsewhere.
var (
	// ErrAlreadyClosed is returned by the public APIs gated on Ready
	// whenever the consumer is not Ready (before Start completes as well
	// as once it has entered Closing, Closed, or Failed).
	ErrAlreadyClosed = errors.New("consumer already closed")

	// ErrInvalidTopicName is returned when a topic name fails parsing.
	ErrInvalidTopicName = errors.New("invalid topic name")

	// ErrInvalidConfiguration is returned for API calls that are
	// incompatible with the current configuration (e.g. synchronous
	// receive while a message listener is configured).
	ErrInvalidConfiguration = errors.New("invalid configuration for this operation")

	// ErrTopicNotFound is returned when an operation names a topic the
	// consumer is not subscribed to.
	ErrTopicNotFound = errors.New("topic not subscribed")

	// ErrTimeout is returned by receive operations that exceed their
	// deadline without a message becoming available, and to the callback
	// of an ack, seek, unsubscribe, or close operation when
	// Config.AckTimeout elapses before it completes.
	ErrTimeout = errors.New("receive timed out")

	// ErrOperationNotSupported is returned for ack/seek calls that name
	// a message ID or topic the consumer cannot route.
	ErrOperationNotSupported = errors.New("operation not supported for this message or topic")

	// ErrConnectError is returned when a child consumer fails to be
	// constructed or started during subscribe, and when a partition
	// metadata lookup fails or its circuit breaker is open.
	ErrConnectError = errors.New("child consumer connect error")

	// ErrConsumerNotInitialized is returned by
	// GetBrokerConsumerStatsAsync whenever the consumer is not Ready.
	ErrConsumerNotInitialized = errors.New("consumer not initialized")

	// ErrUnknownError is a catch-all for fan-out rendezvous failures
	// that do not carry a more specific cause.
	ErrUnknownError = errors.New("unknown error")
)
