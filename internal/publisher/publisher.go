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

// Package publisher appends batches of domain records to Kafka topics.
package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/idgen"
	"github.com/cardinalhq/airharvest/internal/records"
)

const (
	HeaderKind    = "kind"
	HeaderBatchID = "batch-id"
	HeaderCount   = "record-count"
)

// messageOverhead is reserved in every message for key, headers and framing.
const messageOverhead = 4096

// Publisher serialises each batch as JSON array messages no larger than
// the producer accepts.
type Publisher struct {
	producer        fly.Producer
	ids             idgen.IDGenerator
	now             func() time.Time
	logger          *slog.Logger
	maxMessageBytes int
}

type Option func(*Publisher)

// WithMaxMessageBytes caps the encoded size of one message. Values at or
// below zero keep fly.DefaultMaxMessageBytes.
func WithMaxMessageBytes(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.maxMessageBytes = n
		}
	}
}

func New(producer fly.Producer, opts ...Option) *Publisher {
	p := &Publisher{
		producer:        producer,
		ids:             idgen.NewULIDGenerator(),
		now:             time.Now,
		logger:          slog.Default().With(slog.String("component", "publisher")),
		maxMessageBytes: fly.DefaultMaxMessageBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Publisher) maxValueBytes() int {
	return max(p.maxMessageBytes-messageOverhead, 1)
}

// Publish appends batch to topic. A batch that encodes larger than the
// message limit is halved until every part fits, and each part goes out as
// its own message with its own batch ID; parts are attempted even when an
// earlier one fails. An empty batch publishes nothing. Records in one batch
// are expected to share a kind.
func (p *Publisher) Publish(ctx context.Context, topic string, batch []records.Record) error {
	if len(batch) == 0 {
		return nil
	}

	value, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode %d records for %s: %w", len(batch), topic, err)
	}
	if len(value) > p.maxValueBytes() && len(batch) > 1 {
		mid := len(batch) / 2
		p.logger.Debug("Splitting oversize batch",
			slog.String("topic", topic),
			slog.Int("records", len(batch)),
			slog.Int("bytes", len(value)))
		return errors.Join(
			p.Publish(ctx, topic, batch[:mid]),
			p.Publish(ctx, topic, batch[mid:]))
	}

	batchID := p.ids.Make(p.now())
	msg := fly.Message{
		Key:   []byte(batchID),
		Value: value,
		Headers: map[string]string{
			HeaderKind:    string(batch[0].Kind()),
			HeaderBatchID: batchID,
			HeaderCount:   fmt.Sprint(len(batch)),
		},
	}

	if err := p.producer.Send(ctx, topic, msg); err != nil {
		return fmt.Errorf("publish batch %s to %s: %w", batchID, topic, err)
	}

	p.logger.Debug("Published batch",
		slog.String("topic", topic),
		slog.String("batchID", batchID),
		slog.Int("records", len(batch)),
		slog.Int("bytes", len(value)))
	return nil
}
