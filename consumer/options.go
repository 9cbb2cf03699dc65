// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Default values.
const (
	DefaultReceiverQueueSize      = 1000
	DefaultAckTimeout             = 10 * time.Second
	DefaultPartitionsUpdateTicker = 60 * time.Second
	DefaultUnackedTick            = 1 * time.Second
)

// Config configures a multi-topic consumer. It is constructed with
// NewConfig and adjusted with With* functional options, mirroring the
// builder-less struct-plus-setter convention used throughout this
// lineage, generalized to functional options so ambient collaborators
// (logger, metrics, breaker) can be swapped independently of the
// wire-level knobs.
type Config struct {
	Topics []string

	// ReceiverQueueSize is the per-child receiver queue size handed to
	// NewChildConsumer, before MaxTotalReceiverQueueSizeAcrossPartitions
	// divides it. MergedQueue does not enforce it as a capacity of its
	// own.
	ReceiverQueueSize int

	// MaxTotalReceiverQueueSizeAcrossPartitions caps the sum of all
	// per-child queue sizes for multi-partition topics. Zero disables
	// the cap (each child gets ReceiverQueueSize).
	MaxTotalReceiverQueueSizeAcrossPartitions int

	// UnAckedMessagesTimeoutMs is 0 to disable the unacked tracker, or
	// a positive redelivery timeout to enable it.
	UnAckedMessagesTimeoutMs int64

	// TickDurationInMs is the unacked tracker's timer granularity when
	// UnAckedMessagesTimeoutMs > 0. Zero uses DefaultUnackedTick.
	TickDurationInMs int64

	// PartitionsUpdateInterval is the partition-refresh period. Zero
	// disables PartitionRefresher.
	PartitionsUpdateInterval time.Duration

	// MessageListener, if set, puts the consumer in listener mode:
	// synchronous Receive is rejected and messages are dispatched here
	// instead of sitting in MergedQueue.
	MessageListener func(msg *Message)

	// StartPaused, when true, leaves child listeners paused after
	// Ready instead of auto-resuming them.
	StartPaused bool

	// ConsumerType decides whether redeliver-by-id-set is honored
	// per-partition (Shared/KeyShared) or degrades to a full broadcast.
	ConsumerType ConsumerType

	// AckTimeout bounds how long ack/seek/close fan-out rendezvous
	// operations wait on a slow or unresponsive child. If it elapses
	// before every child has responded, the caller's callback fires
	// once with ErrTimeout instead of waiting indefinitely; whichever
	// of the timeout or the real completion happens first wins, and
	// the other is discarded. Zero disables the guard.
	AckTimeout time.Duration

	Logger  *slog.Logger
	Metrics *Metrics
	Lookup  Lookup

	// NewChildConsumer constructs one ChildConsumer per partition, and
	// the single child of a non-partitioned topic. Validate rejects a
	// config that lists topics without it.
	NewChildConsumer ChildConsumerFactory

	breakerSettings gobreaker.Settings
}

// NewConfig returns a Config with sensible defaults for the given
// topics. Lookup must be supplied with WithLookup before Start.
func NewConfig(topics ...string) *Config {
	return &Config{
		Topics:            topics,
		ReceiverQueueSize: DefaultReceiverQueueSize,
		TickDurationInMs:  DefaultUnackedTick.Milliseconds(),
		AckTimeout:        DefaultAckTimeout,
		ConsumerType:      ConsumerExclusive,
		breakerSettings: gobreaker.Settings{
			Name:        "lookup",
			MaxRequests: 1,
			Interval:    30 * time.Second,
			Timeout:     10 * time.Second,
		},
	}
}

// Option adjusts a Config in place.
type Option func(*Config)

// Apply runs every option against c.
func (c *Config) Apply(opts ...Option) *Config {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithReceiverQueueSize sets the per-child queue size bound.
func WithReceiverQueueSize(n int) Option {
	return func(c *Config) { c.ReceiverQueueSize = n }
}

// WithMaxTotalReceiverQueueSizeAcrossPartitions sets the divided cap.
func WithMaxTotalReceiverQueueSizeAcrossPartitions(n int) Option {
	return func(c *Config) { c.MaxTotalReceiverQueueSizeAcrossPartitions = n }
}

// WithUnAckedMessagesTimeout enables the timed unacked tracker.
func WithUnAckedMessagesTimeout(timeout, tick time.Duration) Option {
	return func(c *Config) {
		c.UnAckedMessagesTimeoutMs = timeout.Milliseconds()
		c.TickDurationInMs = tick.Milliseconds()
	}
}

// WithPartitionsUpdateInterval arms PartitionRefresher.
func WithPartitionsUpdateInterval(d time.Duration) Option {
	return func(c *Config) { c.PartitionsUpdateInterval = d }
}

// WithMessageListener puts the consumer in listener mode.
func WithMessageListener(fn func(msg *Message)) Option {
	return func(c *Config) { c.MessageListener = fn }
}

// WithStartPaused leaves listeners paused after Ready.
func WithStartPaused(paused bool) Option {
	return func(c *Config) { c.StartPaused = paused }
}

// WithConsumerType sets the subscription type.
func WithConsumerType(t ConsumerType) Option {
	return func(c *Config) { c.ConsumerType = t }
}

// WithLogger sets the structured logger; nil falls back to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithMetrics sets the OpenTelemetry metrics sink.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) { c.Metrics = m }
}

// WithLookup sets the partition-metadata lookup collaborator.
func WithLookup(l Lookup) Option {
	return func(c *Config) { c.Lookup = l }
}

// WithBreakerSettings overrides the circuit breaker guarding Lookup calls.
func WithBreakerSettings(s gobreaker.Settings) Option {
	return func(c *Config) { c.breakerSettings = s }
}

// WithChildConsumerFactory sets the per-partition ChildConsumer
// constructor.
func WithChildConsumerFactory(f ChildConsumerFactory) Option {
	return func(c *Config) { c.NewChildConsumer = f }
}

// Validate checks the config for internal consistency.
func (c *Config) Validate() error {
	if len(c.Topics) == 0 {
		return nil // an empty topic list is valid: Start immediately reaches Ready
	}
	if c.ReceiverQueueSize <= 0 {
		c.ReceiverQueueSize = DefaultReceiverQueueSize
	}
	if c.Lookup == nil || c.NewChildConsumer == nil {
		return ErrInvalidConfiguration
	}
	return nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// childReceiverQueueSize divides the total cross-partition receiver
// budget across P partitions: min(receiverQueueSize, floor(total/P)),
// clamped to at least 1 so a topic with many partitions never starves
// a child's queue down to zero.
func (c *Config) childReceiverQueueSize(partitions int) int {
	if c.MaxTotalReceiverQueueSizeAcrossPartitions <= 0 || partitions <= 0 {
		return c.ReceiverQueueSize
	}
	share := c.MaxTotalReceiverQueueSizeAcrossPartitions / partitions
	if share < 1 {
		share = 1
	}
	if share < c.ReceiverQueueSize {
		return share
	}
	return c.ReceiverQueueSize
}
