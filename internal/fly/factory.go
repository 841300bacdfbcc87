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
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
)

const defaultClientTimeout = 10 * time.Second

var compressionCodecs = map[string]kafka.Compression{
	"":             0,
	"none":         0,
	"uncompressed": 0,
	"gzip":         kafka.Gzip,
	"snappy":       kafka.Snappy,
	"lz4":          kafka.Lz4,
	"zstd":         kafka.Zstd,
}

var ackLevels = map[string]kafka.RequiredAcks{
	"":     kafka.RequireAll,
	"all":  kafka.RequireAll,
	"one":  kafka.RequireOne,
	"none": kafka.RequireNone,
}

// Factory builds producers, consumers and admin clients that share one
// broker list and one set of credentials.
type Factory struct {
	config *Config
}

func NewFactory(cfg *Config) *Factory {
	return &Factory{config: cfg}
}

func (f *Factory) GetConfig() *Config {
	return f.config
}

func (f *Factory) compression() (kafka.Compression, error) {
	c, ok := compressionCodecs[strings.ToLower(f.config.ProducerCompression)]
	if !ok {
		return 0, fmt.Errorf("unsupported compression: %s", f.config.ProducerCompression)
	}
	return c, nil
}

func (f *Factory) requiredAcks() (kafka.RequiredAcks, error) {
	a, ok := ackLevels[strings.ToLower(f.config.ProducerRequiredAcks)]
	if !ok {
		return 0, fmt.Errorf("unsupported required acks: %s", f.config.ProducerRequiredAcks)
	}
	return a, nil
}

// security returns the SASL mechanism and TLS settings, either of which may
// be nil when disabled.
func (f *Factory) security() (sasl.Mechanism, *tls.Config, error) {
	var tlsConfig *tls.Config
	if f.config.TLSEnabled {
		tlsConfig = &tls.Config{InsecureSkipVerify: f.config.TLSSkipVerify}
	}
	if !f.config.SASLEnabled {
		return nil, tlsConfig, nil
	}

	user, pass := f.config.SASLUsername, f.config.SASLPassword
	var (
		mech sasl.Mechanism
		err  error
	)
	switch f.config.SASLMechanism {
	case "PLAIN":
		mech = plain.Mechanism{Username: user, Password: pass}
	case "SCRAM-SHA-256":
		mech, err = scram.Mechanism(scram.SHA256, user, pass)
	case "SCRAM-SHA-512":
		mech, err = scram.Mechanism(scram.SHA512, user, pass)
	default:
		err = fmt.Errorf("unsupported SASL mechanism: %s", f.config.SASLMechanism)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("kafka sasl: %w", err)
	}
	return mech, tlsConfig, nil
}

func (f *Factory) CreateProducer() (Producer, error) {
	compression, cerr := f.compression()
	acks, aerr := f.requiredAcks()
	if err := errors.Join(cerr, aerr); err != nil {
		return nil, err
	}
	transport, err := f.CreateTransport()
	if err != nil {
		return nil, err
	}

	return NewProducer(ProducerConfig{
		Brokers:      f.config.Brokers,
		BatchSize:    f.config.ProducerBatchSize,
		BatchTimeout: f.config.ProducerBatchTimeout,
		RequiredAcks: acks,
		Compression:  compression,
		BatchBytes:   int64(f.config.ProducerMaxMessageBytes),
		Transport:    transport,
	}), nil
}

// CreateConsumer joins groupID on topic, reading from the earliest offset
// when the group has no commit. batchSize overrides the configured poll size
// when positive.
func (f *Factory) CreateConsumer(topic, groupID string, batchSize int) (Consumer, error) {
	mech, tlsConfig, err := f.security()
	if err != nil {
		return nil, err
	}
	if batchSize <= 0 {
		batchSize = f.config.ConsumerBatchSize
	}

	return NewConsumer(ConsumerConfig{
		Brokers:           f.config.Brokers,
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          f.config.ConsumerMinBytes,
		MaxBytes:          f.config.ConsumerMaxBytes,
		MaxWait:           f.config.ConsumerMaxWait,
		BatchSize:         batchSize,
		StartOffset:       kafka.FirstOffset,
		ConnectionTimeout: f.config.ConnectionTimeout,
		SASLMechanism:     mech,
		TLSConfig:         tlsConfig,
	}), nil
}

// CreateTransport is the kafka-go transport used by writers and clients.
func (f *Factory) CreateTransport() (*kafka.Transport, error) {
	mech, tlsConfig, err := f.security()
	if err != nil {
		return nil, err
	}
	t := &kafka.Transport{SASL: mech, TLS: tlsConfig}
	if f.config.ConnectionTimeout > 0 {
		t.DialTimeout = f.config.ConnectionTimeout
	}
	return t, nil
}

// CreateKafkaClient returns a client for metadata, offset and topic requests.
func (f *Factory) CreateKafkaClient() (*kafka.Client, error) {
	if len(f.config.Brokers) == 0 {
		return nil, errors.New("no kafka brokers configured")
	}
	transport, err := f.CreateTransport()
	if err != nil {
		return nil, err
	}
	timeout := f.config.ConnectionTimeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	return &kafka.Client{
		Addr:      kafka.TCP(f.config.Brokers...),
		Transport: transport,
		Timeout:   timeout,
	}, nil
}

func (f *Factory) CreateTopicSyncer() *TopicSyncer {
	return NewTopicSyncer(f)
}
