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
	"time"

	"github.com/segmentio/kafka-go"
)

// Producer appends messages to topics.
type Producer interface {
	Send(ctx context.Context, topic string, message Message) error
	// BatchSend appends messages to topic in order. Messages with equal keys
	// land on the same partition.
	BatchSend(ctx context.Context, topic string, messages []Message) error
	Close() error
}

type ProducerConfig struct {
	Brokers      []string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks kafka.RequiredAcks
	Compression  kafka.Compression
	// BatchBytes caps one produce request, and so one message. Zero uses
	// DefaultMaxMessageBytes.
	BatchBytes int64

	// Transport carries SASL and TLS settings. nil uses kafka-go's default.
	Transport *kafka.Transport
}

// kafkaProducer routes every topic through one kafka-go writer; the topic
// travels on each message.
type kafkaProducer struct {
	w *kafka.Writer
}

func NewProducer(config ProducerConfig) Producer {
	w := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		RequiredAcks: config.RequiredAcks,
		Compression:  config.Compression,
		BatchBytes:   config.BatchBytes,
	}
	if w.BatchBytes <= 0 {
		w.BatchBytes = DefaultMaxMessageBytes
	}
	if config.Transport != nil {
		w.Transport = config.Transport
	}
	return &kafkaProducer{w: w}
}

func (p *kafkaProducer) Send(ctx context.Context, topic string, message Message) error {
	return p.BatchSend(ctx, topic, []Message{message})
}

func (p *kafkaProducer) BatchSend(ctx context.Context, topic string, messages []Message) error {
	if len(messages) == 0 {
		return nil
	}
	batch := make([]kafka.Message, 0, len(messages))
	for i := range messages {
		km := messages[i].ToKafkaMessage()
		km.Topic = topic
		batch = append(batch, km)
	}
	err := p.w.WriteMessages(ctx, batch...)
	recordSentMetrics(ctx, topic, messages, err)
	return err
}

func (p *kafkaProducer) Close() error {
	return p.w.Close()
}
