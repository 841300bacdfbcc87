// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package fly

import (
	"errors"
	"strings"
	"time"
)

// Config holds the Kafka configuration
type Config struct {
	// Broker configuration
	Brokers []string `mapstructure:"brokers"`

	// SASL/SCRAM authentication
	SASLEnabled   bool   `mapstructure:"sasl_enabled"`
	SASLMechanism string `mapstructure:"sasl_mechanism"` // "SCRAM-SHA-256", "SCRAM-SHA-512" or "PLAIN"
	SASLUsername  string `mapstructure:"sasl_username"`
	SASLPassword  string `mapstructure:"sasl_password"`

	// TLS configuration
	TLSEnabled    bool `mapstructure:"tls_enabled"`
	TLSSkipVerify bool `mapstructure:"tls_skip_verify"`

	// Producer settings
	ProducerBatchSize    int           `mapstructure:"producer_batch_size"`
	ProducerBatchTimeout time.Duration `mapstructure:"producer_batch_timeout"`
	ProducerCompression  string        `mapstructure:"producer_compression"`
	ProducerRequiredAcks string        `mapstructure:"producer_required_acks"` // "all", "one" or "none"
	// ProducerMaxMessageBytes bounds one message; topics are created to accept it.
	ProducerMaxMessageBytes int `mapstructure:"producer_max_message_bytes"`

	// Consumer settings
	ConsumerGroupPrefix string        `mapstructure:"consumer_group_prefix"`
	ConsumerBatchSize   int           `mapstructure:"consumer_batch_size"`
	ConsumerMaxWait     time.Duration `mapstructure:"consumer_max_wait"`
	ConsumerMinBytes    int           `mapstructure:"consumer_min_bytes"`
	ConsumerMaxBytes    int           `mapstructure:"consumer_max_bytes"`

	// Connection settings
	ConnectionTimeout time.Duration `mapstructure:"connection_timeout"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Brokers: []string{"localhost:9092"},

		SASLMechanism: "SCRAM-SHA-256",

		ProducerBatchSize:    1,
		ProducerBatchTimeout: 10 * time.Millisecond,
		ProducerCompression:  "snappy",
		ProducerRequiredAcks: "all",

		ProducerMaxMessageBytes: DefaultMaxMessageBytes,

		ConsumerBatchSize: 100,
		ConsumerMaxWait:   500 * time.Millisecond,
		ConsumerMinBytes:  1,
		ConsumerMaxBytes:  DefaultMaxMessageBytes,

		ConnectionTimeout: 10 * time.Second,
	}
}

// Validate reports configuration that would fail later in a less obvious way.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Brokers) == 0 || strings.TrimSpace(c.Brokers[0]) == "" {
		errs = append(errs, errors.New("kafka: at least one broker is required"))
	}
	if c.ConsumerBatchSize <= 0 {
		errs = append(errs, errors.New("kafka: consumer batch size must be positive"))
	}
	if c.ProducerMaxMessageBytes < 0 {
		errs = append(errs, errors.New("kafka: producer max message bytes must not be negative"))
	}
	if c.ConsumerMaxWait <= 0 {
		errs = append(errs, errors.New("kafka: consumer max wait must be positive"))
	}
	if c.SASLEnabled && c.SASLUsername == "" {
		errs = append(errs, errors.New("kafka: sasl enabled without a username"))
	}
	return errors.Join(errs...)
}

// GetConsumerGroup returns the consumer group name for the given service
func (c *Config) GetConsumerGroup(service string) string {
	if c.ConsumerGroupPrefix == "" {
		return service
	}
	return c.ConsumerGroupPrefix + "." + service
}
