// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the YAML-serializable subset of Config: the declarative
// tunables, not the runtime collaborators. Lookup, NewChildConsumer,
// Logger, Metrics, and MessageListener have no file representation and
// are always supplied through With* options after LoadConfig returns.
type FileConfig struct {
	Topics                                     []string      `yaml:"topics"`
	ReceiverQueueSize                          int           `yaml:"receiver_queue_size"`
	MaxTotalReceiverQueueSizeAcrossPartitions  int           `yaml:"max_total_receiver_queue_size_across_partitions"`
	UnAckedMessagesTimeoutMs                    int64         `yaml:"unacked_messages_timeout_ms"`
	TickDurationInMs                            int64         `yaml:"tick_duration_ms"`
	PartitionsUpdateInterval                    time.Duration `yaml:"partitions_update_interval"`
	StartPaused                                 bool          `yaml:"start_paused"`
	ConsumerType                                string        `yaml:"consumer_type"`
	AckTimeout                                  time.Duration `yaml:"ack_timeout"`
}

// LoadConfig reads a YAML file into a Config. An empty filename, or one
// that doesn't exist, returns the same defaults as NewConfig with no
// topics.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		return NewConfig(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return NewConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	consumerType, err := parseConsumerType(fc.ConsumerType)
	if err != nil {
		return nil, err
	}

	cfg := NewConfig(fc.Topics...)
	if fc.ReceiverQueueSize > 0 {
		cfg.ReceiverQueueSize = fc.ReceiverQueueSize
	}
	cfg.MaxTotalReceiverQueueSizeAcrossPartitions = fc.MaxTotalReceiverQueueSizeAcrossPartitions
	cfg.UnAckedMessagesTimeoutMs = fc.UnAckedMessagesTimeoutMs
	if fc.TickDurationInMs > 0 {
		cfg.TickDurationInMs = fc.TickDurationInMs
	}
	cfg.PartitionsUpdateInterval = fc.PartitionsUpdateInterval
	cfg.StartPaused = fc.StartPaused
	cfg.ConsumerType = consumerType
	if fc.AckTimeout > 0 {
		cfg.AckTimeout = fc.AckTimeout
	}

	return cfg, nil
}

func parseConsumerType(s string) (ConsumerType, error) {
	switch s {
	case "", "exclusive":
		return ConsumerExclusive, nil
	case "failover":
		return ConsumerFailover, nil
	case "shared":
		return ConsumerShared, nil
	case "key_shared":
		return ConsumerKeyShared, nil
	default:
		return 0, fmt.Errorf("unknown consumer_type %q", s)
	}
}

// Save writes cfg's YAML-serializable tunables to filename.
func (c *Config) Save(filename string) error {
	fc := FileConfig{
		Topics:                                     c.Topics,
		ReceiverQueueSize:                          c.ReceiverQueueSize,
		MaxTotalReceiverQueueSizeAcrossPartitions:   c.MaxTotalReceiverQueueSizeAcrossPartitions,
		UnAckedMessagesTimeoutMs:                    c.UnAckedMessagesTimeoutMs,
		TickDurationInMs:                            c.TickDurationInMs,
		PartitionsUpdateInterval:                    c.PartitionsUpdateInterval,
		StartPaused:                                 c.StartPaused,
		ConsumerType:                                consumerTypeName(c.ConsumerType),
		AckTimeout:                                   c.AckTimeout,
	}

	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func consumerTypeName(t ConsumerType) string {
	switch t {
	case ConsumerFailover:
		return "failover"
	case ConsumerShared:
		return "shared"
	case ConsumerKeyShared:
		return "key_shared"
	default:
		return "exclusive"
	}
}
