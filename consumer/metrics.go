// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OpenTelemetry instruments this engine emits. A nil
// *Metrics is valid everywhere it is used: every record*/adjust* method is a
// safe no-op on a nil receiver, so Config.Metrics may be left unset.
type Metrics struct {
	meter metric.Meter

	messagesDelivered metric.Int64Counter
	acksRouted        metric.Int64Counter
	seekOperations    metric.Int64Counter
	partitionsFound   metric.Int64Counter

	childConsumersActive metric.Int64UpDownCounter
	queueDepth           metric.Int64UpDownCounter

	queueWaitDuration metric.Float64Histogram
}

// NewMetrics creates a Metrics instance against the global
// OpenTelemetry meter provider, registered under the given
// instrumentation name (typically the importing application's name).
func NewMetrics(meterName string) (*Metrics, error) {
	m := &Metrics{meter: otel.Meter(meterName)}

	var err error
	if m.messagesDelivered, err = m.meter.Int64Counter(
		"consumer.messages.delivered",
		metric.WithDescription("Messages delivered to the merged queue, a pending receive, or the listener"),
	); err != nil {
		return nil, fmt.Errorf("create messagesDelivered counter: %w", err)
	}

	if m.acksRouted, err = m.meter.Int64Counter(
		"consumer.acks.routed",
		metric.WithDescription("Acknowledgements routed to an owning child consumer"),
	); err != nil {
		return nil, fmt.Errorf("create acksRouted counter: %w", err)
	}

	if m.seekOperations, err = m.meter.Int64Counter(
		"consumer.seek.operations",
		metric.WithDescription("Seek operations completed"),
	); err != nil {
		return nil, fmt.Errorf("create seekOperations counter: %w", err)
	}

	if m.partitionsFound, err = m.meter.Int64Counter(
		"consumer.partitions.discovered",
		metric.WithDescription("New partitions discovered by PartitionRefresher"),
	); err != nil {
		return nil, fmt.Errorf("create partitionsFound counter: %w", err)
	}

	if m.childConsumersActive, err = m.meter.Int64UpDownCounter(
		"consumer.children.active",
		metric.WithDescription("Currently registered child consumers"),
	); err != nil {
		return nil, fmt.Errorf("create childConsumersActive gauge: %w", err)
	}

	if m.queueDepth, err = m.meter.Int64UpDownCounter(
		"consumer.queue.depth",
		metric.WithDescription("Resident message count in the merged queue"),
	); err != nil {
		return nil, fmt.Errorf("create queueDepth gauge: %w", err)
	}

	if m.queueWaitDuration, err = m.meter.Float64Histogram(
		"consumer.queue.wait_ms",
		metric.WithDescription("Time a message spent queued before delivery"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("create queueWaitDuration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordDelivered(path string) {
	if m == nil {
		return
	}
	m.messagesDelivered.Add(context.Background(), 1, metric.WithAttributes(attribute.String("path", path)))
}

func (m *Metrics) recordAck(topic string) {
	if m == nil {
		return
	}
	m.acksRouted.Add(context.Background(), 1, metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *Metrics) recordSeek() {
	if m == nil {
		return
	}
	m.seekOperations.Add(context.Background(), 1)
}

func (m *Metrics) recordPartitionsDiscovered(topic string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.partitionsFound.Add(context.Background(), int64(n), metric.WithAttributes(attribute.String("topic", topic)))
}

func (m *Metrics) adjustActiveChildren(delta int) {
	if m == nil {
		return
	}
	m.childConsumersActive.Add(context.Background(), int64(delta))
}

func (m *Metrics) adjustQueueDepth(delta int) {
	if m == nil {
		return
	}
	m.queueDepth.Add(context.Background(), int64(delta))
}

func (m *Metrics) recordQueueWait(ms float64) {
	if m == nil {
		return
	}
	m.queueWaitDuration.Record(context.Background(), ms)
}
