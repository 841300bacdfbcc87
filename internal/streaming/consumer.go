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

// Package streaming turns Kafka topics back into rows. Offsets move only
// after a sink call succeeds, so delivery is at least once and the sinks
// must be idempotent.
package streaming

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/heartbeat"
	"github.com/cardinalhq/airharvest/internal/records"
)

// Mode selects how a poll-batch is persisted.
type Mode string

const (
	// ModeMessage persists each message on its own.
	ModeMessage Mode = "message"
	// ModeBatch persists everything decoded from one poll in a single sink call.
	ModeBatch Mode = "batch"

	DefaultHeartbeatInterval = 10 * time.Second
	DefaultRetryBackoff      = 5 * time.Second
)

// ParseMode accepts "message" or "batch"; empty means batch.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeBatch:
		return ModeBatch, nil
	case ModeMessage:
		return ModeMessage, nil
	default:
		return "", fmt.Errorf("unknown consumer mode %q", s)
	}
}

// PollSize is the fly consumer batch size to use for the mode.
func (m Mode) PollSize(configured int) int {
	if m == ModeMessage {
		return 1
	}
	return configured
}

type Options struct {
	Mode              Mode
	HeartbeatInterval time.Duration
	RetryBackoff      time.Duration
}

// Consumer decodes messages from one topic into T and hands them to a sink.
type Consumer[T records.Record] struct {
	source            fly.Consumer
	sink              Sink[T]
	mode              Mode
	heartbeatInterval time.Duration
	retryBackoff      time.Duration
	kind              records.Kind
	logger            *slog.Logger
}

func NewConsumer[T records.Record](source fly.Consumer, sink Sink[T], opts Options) *Consumer[T] {
	if opts.Mode == "" {
		opts.Mode = ModeBatch
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = DefaultRetryBackoff
	}
	var zero T
	return &Consumer[T]{
		source:            source,
		sink:              sink,
		mode:              opts.Mode,
		heartbeatInterval: opts.HeartbeatInterval,
		retryBackoff:      opts.RetryBackoff,
		kind:              zero.Kind(),
		logger: slog.Default().With(
			slog.String("component", "batch-consumer"),
			slog.String("topic", source.Topic()),
			slog.String("mode", string(opts.Mode))),
	}
}

// Run consumes until ctx is cancelled. Any other consume error is logged
// and consumption resumes after the retry backoff.
func (c *Consumer[T]) Run(ctx context.Context) error {
	c.logger.Info("Starting batch consumer", slog.String("consumerGroup", c.source.GroupID()))
	for {
		err := c.source.Consume(ctx, c.Handle)
		if ctx.Err() != nil {
			c.logger.Info("Batch consumer stopped")
			return nil
		}
		if errors.Is(err, fly.ErrHandlerFailed) {
			c.logger.Warn("Persistence failed, messages will be redelivered",
				slog.Any("error", err),
				slog.Duration("backoff", c.retryBackoff))
		} else {
			c.logger.Error("Consumer loop failed, restarting",
				slog.Any("error", err),
				slog.Duration("backoff", c.retryBackoff))
		}

		timer := time.NewTimer(c.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// Handle processes one poll-batch. It returns an error only when a sink
// call fails, which leaves the whole poll-batch uncommitted.
func (c *Consumer[T]) Handle(ctx context.Context, msgs []fly.ConsumedMessage) error {
	if c.mode == ModeMessage {
		for i := range msgs {
			recs, ok := c.decode(ctx, &msgs[i])
			if !ok {
				continue
			}
			if err := c.persist(ctx, recs); err != nil {
				return err
			}
		}
		return nil
	}

	var all []T
	for i := range msgs {
		if recs, ok := c.decode(ctx, &msgs[i]); ok {
			all = append(all, recs...)
		}
	}
	return c.persist(ctx, all)
}

func (c *Consumer[T]) decode(ctx context.Context, msg *fly.ConsumedMessage) ([]T, bool) {
	if kind := msg.Header("kind"); kind != "" && kind != string(c.kind) {
		decodeFailureCounter.Add(ctx, 1, topicAttrs(msg.Topic))
		c.logger.Warn("Skipping message of another kind",
			slog.String("kind", kind),
			slog.Int64("offset", msg.Offset))
		return nil, false
	}

	recs, err := records.DecodePayload[T](msg.Value)
	if err != nil {
		decodeFailureCounter.Add(ctx, 1, topicAttrs(msg.Topic))
		c.logger.Warn("Skipping undecodable message",
			slog.Int("partition", msg.Partition),
			slog.Int64("offset", msg.Offset),
			slog.Any("error", err))
		return nil, false
	}
	return recs, true
}

func (c *Consumer[T]) persist(ctx context.Context, recs []T) error {
	if len(recs) == 0 {
		return nil
	}

	attrs := topicAttrs(c.source.Topic())
	ctx, span := tracer.Start(ctx, "streaming.persist",
		trace.WithAttributes(
			attribute.String("topic", c.source.Topic()),
			attribute.String("kind", string(c.kind)),
			attribute.Int("records", len(recs))))
	defer span.End()

	start := time.Now()
	var rows int64
	err := heartbeat.During(ctx, c.heartbeatInterval, func(ctx context.Context) error {
		c.source.ReportLag(ctx)
		return nil
	}, c.logger, func(ctx context.Context) error {
		var err error
		rows, err = c.sink.Persist(ctx, recs)
		return err
	})
	persistDuration.Record(ctx, time.Since(start).Seconds(), attrs)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		persistFailureCounter.Add(ctx, 1, attrs)
		return fmt.Errorf("persist %d %s records: %w", len(recs), c.kind, err)
	}

	recordsPersisted.Add(ctx, int64(len(recs)), attrs)
	rowsAffected.Add(ctx, rows, attrs)
	c.logger.Debug("Persisted records",
		slog.Int("records", len(recs)),
		slog.Int64("rows", rows))
	return nil
}
