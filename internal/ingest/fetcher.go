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

// Package ingest walks the chunks of one airport against a provider and
// hands each response to the publisher.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/provider"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/timechunk"
	"github.com/cardinalhq/airharvest/internal/watermark"
)

const (
	DefaultRequestDelay      = 1500 * time.Millisecond
	DefaultRateLimitCooldown = 30 * time.Second
	// FlightLatency is how long the flight provider may still revise history.
	FlightLatency = 4 * 24 * time.Hour
)

// Source is one provider endpoint for one kind of record.
type Source interface {
	Kind() records.Kind
	Name() string
	// Chunked sources get one request per planned chunk. Others get a
	// single request per airport.
	Chunked() bool
	Fetch(ctx context.Context, key airports.Key, chunk timechunk.Chunk) ([]records.Record, error)
}

// Watermarks resolves resume points.
type Watermarks interface {
	Resolve(ctx context.Context, key airports.Key, kind records.Kind) (time.Time, bool, error)
}

// Publisher accepts completed batches.
type Publisher interface {
	Publish(ctx context.Context, topic string, batch []records.Record) error
}

type Options struct {
	Topic             string
	Latency           time.Duration
	RequestDelay      time.Duration
	RateLimitCooldown time.Duration

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Result summarises one Run.
type Result struct {
	Requests        int
	Fetched         int
	Published       int
	Dropped         int
	PublishFailures int
	// Err is the request error that aborted the remaining chunks, if any.
	Err error
}

// Fetcher runs one Source for one airport at a time. It is not safe for
// concurrent use; callers run airports sequentially.
type Fetcher struct {
	source     Source
	watermarks Watermarks
	publisher  Publisher
	opts       Options
	logger     *slog.Logger
}

func NewFetcher(source Source, watermarks Watermarks, publisher Publisher, opts Options) *Fetcher {
	if opts.RequestDelay < 0 {
		opts.RequestDelay = 0
	}
	if opts.RateLimitCooldown <= 0 {
		opts.RateLimitCooldown = DefaultRateLimitCooldown
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepCtx
	}
	return &Fetcher{
		source:     source,
		watermarks: watermarks,
		publisher:  publisher,
		opts:       opts,
		logger: slog.Default().With(
			slog.String("component", "fetcher"),
			slog.String("source", source.Name()),
			slog.String("topic", opts.Topic)),
	}
}

func (f *Fetcher) Source() Source { return f.source }

// plan works out which chunks to request for key.
func (f *Fetcher) plan(ctx context.Context, key airports.Key, chunks []timechunk.Chunk) ([]timechunk.Chunk, error) {
	now := f.opts.Now().UTC()
	if !f.source.Chunked() {
		today := timechunk.Date(now)
		return []timechunk.Chunk{{Start: today, End: today}}, nil
	}

	wm, found, err := f.watermarks.Resolve(ctx, key, f.source.Kind())
	if err != nil && !errors.Is(err, watermark.ErrNoWatermark) {
		return nil, fmt.Errorf("resolve watermark: %w", err)
	}
	return Plan(chunks, now.Add(-f.opts.Latency), wm, found), nil
}

// Run fetches every planned chunk for key in order. Each successful
// response is filtered against known and published straight away. The
// first failed request stops the loop. Run never returns early on a
// publish failure.
func (f *Fetcher) Run(ctx context.Context, key airports.Key, chunks []timechunk.Chunk, known mapset.Set[string]) Result {
	var res Result
	logger := f.logger.With(slog.String("airport", key.String()))

	planned, err := f.plan(ctx, key, chunks)
	if err != nil {
		logger.Error("Failed to plan chunks", slog.Any("error", err))
		res.Err = err
		return res
	}
	if len(planned) == 0 {
		logger.Debug("Nothing to fetch", slog.Int("chunks", len(chunks)))
		return res
	}

	attrs := sourceAttrs(f.source.Name())
	var batch []records.Record
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := f.publisher.Publish(ctx, f.opts.Topic, batch); err != nil {
			res.PublishFailures++
			publishFailureCounter.Add(ctx, 1, attrs)
			logger.Error("Failed to publish batch, dropping it for this cycle",
				slog.Int("records", len(batch)),
				slog.Any("error", err))
		} else {
			res.Published += len(batch)
		}
		batch = nil
	}
	defer flush()

	for _, chunk := range planned {
		if err := ctx.Err(); err != nil {
			res.Err = err
			return res
		}

		fetchCtx, span := tracer.Start(ctx, "ingest.fetch",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				attribute.String("source", f.source.Name()),
				attribute.String("airport", key.IATA),
				attribute.String("chunk", chunk.String())))
		start := time.Now()
		recs, err := f.source.Fetch(fetchCtx, key, chunk)
		requestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("records", len(recs)))
		}
		span.End()
		requestCounter.Add(ctx, 1, attrs)
		res.Requests++

		if err != nil {
			res.Err = err
			requestErrorCounter.Add(ctx, 1, attrs)
			flush()

			wait := f.opts.RequestDelay
			if provider.IsRateLimited(err) {
				rateLimitedCounter.Add(ctx, 1, attrs)
				wait = f.opts.RateLimitCooldown
				logger.Warn("Rate limited, cooling down before the next airport",
					slog.String("chunk", chunk.String()),
					slog.Duration("cooldown", wait))
			} else {
				logger.Error("Fetch failed, skipping remaining chunks",
					slog.String("chunk", chunk.String()),
					slog.Any("error", err))
			}
			_ = f.opts.Sleep(ctx, wait)
			return res
		}

		res.Fetched += len(recs)
		recordsFetchedCounter.Add(ctx, int64(len(recs)), attrs)
		dropped := 0
		for _, rec := range recs {
			if known != nil && !known.Contains(rec.AirportCode()) {
				dropped++
				continue
			}
			batch = append(batch, rec)
		}
		res.Dropped += dropped
		recordsDroppedCounter.Add(ctx, int64(dropped), attrs)
		flush()

		logger.Debug("Fetched chunk",
			slog.String("chunk", chunk.String()),
			slog.Int("records", len(recs)))

		if err := f.opts.Sleep(ctx, f.opts.RequestDelay); err != nil {
			res.Err = err
			return res
		}
	}
	return res
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
