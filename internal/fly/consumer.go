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
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
)

const (
	defaultMaxWait     = 500 * time.Millisecond
	defaultDialTimeout = 10 * time.Second
)

// ErrHandlerFailed wraps the error a MessageHandler returned. The messages
// it was given were not committed and will be delivered again.
var ErrHandlerFailed = errors.New("handler failed")

type MessageHandler func(ctx context.Context, messages []ConsumedMessage) error

// Consumer reads one topic as a member of one consumer group.
type Consumer interface {
	// Consume polls the topic and hands batches to handler. A batch is
	// committed only after handler returns nil.
	Consume(ctx context.Context, handler MessageHandler) error
	// ReportLag records the reader's lag. Group membership heartbeats are
	// sent by the kafka-go reader on its own; this only reports progress
	// while a handler is busy.
	ReportLag(ctx context.Context)
	Topic() string
	GroupID() string
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string

	MinBytes int
	MaxBytes int
	// MaxWait bounds how long a partial batch waits for more messages.
	MaxWait     time.Duration
	BatchSize   int
	StartOffset int64

	SASLMechanism     sasl.Mechanism
	TLSConfig         *tls.Config
	ConnectionTimeout time.Duration
}

// DefaultConsumerConfig reads topic from the earliest offset in batches of 100.
func DefaultConsumerConfig(topic, groupID string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:           []string{"localhost:9092"},
		Topic:             topic,
		GroupID:           groupID,
		MinBytes:          1,
		MaxBytes:          DefaultMaxMessageBytes,
		MaxWait:           defaultMaxWait,
		BatchSize:         100,
		StartOffset:       kafka.FirstOffset,
		ConnectionTimeout: defaultDialTimeout,
	}
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Stats() kafka.ReaderStats
	Close() error
}

type kafkaConsumer struct {
	config    ConsumerConfig
	newReader func() messageReader
	logger    *slog.Logger

	mu     sync.Mutex
	reader messageReader
}

// NewConsumer returns a consumer whose kafka-go reader is created lazily and
// commits only when a batch has been handled.
func NewConsumer(config ConsumerConfig) Consumer {
	dialTimeout := config.ConnectionTimeout
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	rc := kafka.ReaderConfig{
		Brokers:     config.Brokers,
		Topic:       config.Topic,
		GroupID:     config.GroupID,
		MinBytes:    config.MinBytes,
		MaxBytes:    config.MaxBytes,
		MaxWait:     config.MaxWait,
		StartOffset: config.StartOffset,
		Dialer: &kafka.Dialer{
			Timeout:       dialTimeout,
			SASLMechanism: config.SASLMechanism,
			TLS:           config.TLSConfig,
		},
	}
	return newConsumer(config, func() messageReader { return kafka.NewReader(rc) })
}

func newConsumer(config ConsumerConfig, newReader func() messageReader) *kafkaConsumer {
	config.BatchSize = max(config.BatchSize, 1)
	if config.MaxWait <= 0 {
		config.MaxWait = defaultMaxWait
	}
	return &kafkaConsumer{
		config:    config,
		newReader: newReader,
		logger: slog.Default().With(
			slog.String("component", "consumer"),
			slog.String("topic", config.Topic),
			slog.String("consumerGroup", config.GroupID)),
	}
}

func (c *kafkaConsumer) Topic() string   { return c.config.Topic }
func (c *kafkaConsumer) GroupID() string { return c.config.GroupID }

func (c *kafkaConsumer) currentReader() messageReader {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		c.reader = c.newReader()
	}
	return c.reader
}

// resetReader drops the reader so the next fetch starts from the last
// committed offset of the group.
func (c *kafkaConsumer) resetReader(ctx context.Context) {
	c.mu.Lock()
	reader := c.reader
	c.reader = nil
	c.mu.Unlock()

	if reader == nil {
		return
	}
	if err := reader.Close(); err != nil {
		c.logger.Warn("Closing reader during reset", slog.Any("error", err))
	}
	readerResetCounter.Add(ctx, 1, consumerAttrs(c.config.Topic, c.config.GroupID))
}

// fill appends to batch until it holds BatchSize messages or a fetch waits
// longer than MaxWait.
func (c *kafkaConsumer) fill(ctx context.Context, batch []ConsumedMessage) ([]ConsumedMessage, error) {
	reader := c.currentReader()
	for len(batch) < c.config.BatchSize {
		fetchCtx, cancel := context.WithTimeout(ctx, c.config.MaxWait)
		msg, err := reader.FetchMessage(fetchCtx)
		cancel()
		switch {
		case err == nil:
			batch = append(batch, FromKafkaMessage(msg))
		case ctx.Err() != nil:
			return batch, ctx.Err()
		case errors.Is(err, context.DeadlineExceeded):
			return batch, nil
		default:
			return batch, fmt.Errorf("fetch message: %w", err)
		}
	}
	return batch, nil
}

func (c *kafkaConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	c.logger.Debug("Consuming",
		slog.Int("batchSize", c.config.BatchSize),
		slog.Duration("maxWait", c.config.MaxWait))

	batch := make([]ConsumedMessage, 0, c.config.BatchSize)
	for {
		// Anything fetched but not handled is uncommitted and comes back.
		if err := ctx.Err(); err != nil {
			return err
		}
		var err error
		if batch, err = c.fill(ctx, batch[:0]); err != nil {
			return err
		}
		if len(batch) == 0 {
			continue
		}
		if err := c.processBatch(ctx, handler, batch); err != nil {
			return err
		}
	}
}

func (c *kafkaConsumer) processBatch(ctx context.Context, handler MessageHandler, messages []ConsumedMessage) error {
	attrs := consumerAttrs(c.config.Topic, c.config.GroupID)
	messagesConsumedCounter.Add(ctx, int64(len(messages)), attrs)

	if err := handler(ctx, messages); err != nil {
		handlerFailureCounter.Add(ctx, 1, attrs)
		c.resetReader(ctx)
		return fmt.Errorf("%w: %w", ErrHandlerFailed, err)
	}

	reader := c.currentReader()
	if err := reader.CommitMessages(ctx, HighestOffsets(messages)...); err != nil {
		c.resetReader(ctx)
		return fmt.Errorf("commit offsets: %w", err)
	}
	messagesCommittedCounter.Add(ctx, int64(len(messages)), attrs)
	return nil
}

func (c *kafkaConsumer) ReportLag(ctx context.Context) {
	c.mu.Lock()
	reader := c.reader
	c.mu.Unlock()
	if reader == nil {
		return
	}

	stats := reader.Stats()
	consumerLagGauge.Record(ctx, stats.Lag, consumerAttrs(c.config.Topic, c.config.GroupID))
	c.logger.Debug("Consumer lag",
		slog.Int64("lag", stats.Lag),
		slog.Int64("offset", stats.Offset),
		slog.Int64("fetched", stats.Messages))
}

func (c *kafkaConsumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.reader == nil {
		return nil
	}
	err := c.reader.Close()
	c.reader = nil
	return err
}
