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

// Package orchestrator drives the ingestion cycle: load airports, fetch
// each one in batches, hand off to the downstream processor between
// batches, then sleep.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/idgen"
	"github.com/cardinalhq/airharvest/internal/ingest"
	"github.com/cardinalhq/airharvest/internal/timechunk"
)

const (
	DefaultBatchSize   = 100
	DefaultCyclePeriod = 2 * time.Hour
	DefaultCursorName  = "ingestion"
)

// Fetcher is what the orchestrator needs from ingest.Fetcher.
type Fetcher interface {
	Source() ingest.Source
	Run(ctx context.Context, key airports.Key, chunks []timechunk.Chunk, known mapset.Set[string]) ingest.Result
}

// Pipeline pairs a fetcher with its lookback window.
type Pipeline struct {
	Name    string
	Fetcher Fetcher
	Window  timechunk.Window
}

func (p Pipeline) chunks(now time.Time) ([]timechunk.Chunk, error) {
	if !p.Fetcher.Source().Chunked() {
		return nil, nil
	}
	return timechunk.Generate(now, p.Window)
}

type AirportRegistry interface {
	Airports(ctx context.Context) ([]airports.Airport, error)
}

type CursorStore interface {
	GetIngestCursor(ctx context.Context, name string) (flightdb.IngestCursor, error)
	SaveIngestCursor(ctx context.Context, arg flightdb.SaveIngestCursorParams) error
}

type Config struct {
	BatchSize          int
	CyclePeriod        time.Duration
	SignalPollInterval time.Duration
	CursorName         string
}

// Orchestrator runs the ingestion cycle. Pipelines run one after another
// for each airport, and airports run one after another, so every provider
// sees a single request stream.
type Orchestrator struct {
	registry   AirportRegistry
	cursors    CursorStore
	signal     Signal
	pipelines  []Pipeline
	background []Pipeline
	cfg        Config

	supervisor *Supervisor
	ids        idgen.IDGenerator
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
	state      stateHolder
	logger     *slog.Logger
}

// New builds an Orchestrator. background pipelines run over every airport
// as a supervised task while the cycle sleeps.
func New(registry AirportRegistry, cursors CursorStore, signal Signal, pipelines, background []Pipeline, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = DefaultCyclePeriod
	}
	if cfg.SignalPollInterval <= 0 {
		cfg.SignalPollInterval = DefaultSignalPollInterval
	}
	if cfg.CursorName == "" {
		cfg.CursorName = DefaultCursorName
	}
	return &Orchestrator{
		registry:   registry,
		cursors:    cursors,
		signal:     signal,
		pipelines:  pipelines,
		background: background,
		cfg:        cfg,
		supervisor: NewSupervisor(1),
		ids:        idgen.NewULIDGenerator(),
		now:        time.Now,
		sleep:      sleepCtx,
		logger:     slog.Default().With(slog.String("component", "orchestrator")),
	}
}

func (o *Orchestrator) State() State { return o.state.load() }

func (o *Orchestrator) Supervisor() *Supervisor { return o.supervisor }

// Run repeats the ingestion cycle until ctx ends. A failed cycle is logged
// and the loop sleeps as usual before trying again.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.state.store(StateIdle)
	for {
		o.state.store(StateIdle)
		if _, err := o.supervisor.Wait(); err != nil {
			o.logger.Warn("Background work from the previous cycle failed", slog.Any("error", err))
		}
		if ctx.Err() != nil {
			return nil
		}

		started := time.Now()
		err := o.RunCycle(ctx)
		cycleDuration.Record(ctx, time.Since(started).Seconds())
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			cycleFailures.Add(ctx, 1)
			o.logger.Error("Ingestion cycle failed", slog.Any("error", err))
		}

		o.state.store(StateSleeping)
		if len(o.background) > 0 {
			o.supervisor.Go(ctx, "background-ingest", o.runBackground)
		}
		o.logger.Info("Sleeping until next cycle", slog.Duration("period", o.cfg.CyclePeriod))
		if err := o.sleep(ctx, o.cfg.CyclePeriod); err != nil {
			_, _ = o.supervisor.Wait()
			return nil
		}
	}
}

// RunCycle processes every airport once, starting at the saved cursor.
func (o *Orchestrator) RunCycle(ctx context.Context) error {
	o.state.store(StateResolvingAirports)
	list, err := o.registry.Airports(ctx)
	if err != nil {
		return fmt.Errorf("load airports: %w", err)
	}
	known := airports.KnownIATA(list)

	now := o.now().UTC()
	chunks := make([][]timechunk.Chunk, len(o.pipelines))
	for i, p := range o.pipelines {
		if chunks[i], err = p.chunks(now); err != nil {
			return fmt.Errorf("chunk %s window: %w", p.Name, err)
		}
	}

	cursor, err := o.cursors.GetIngestCursor(ctx, o.cfg.CursorName)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	start := int(cursor.Position)
	cycleID := cursor.CycleID
	if start <= 0 || start >= len(list) || cycleID == "" {
		start = 0
		cycleID = o.ids.Make(now)
	}

	o.state.store(StateFetching)
	logger := o.logger.With(slog.String("cycleID", cycleID))
	logger.Info("Starting ingestion cycle",
		slog.Int("airports", len(list)),
		slog.Int("resumeAt", start),
		slog.Int("batchSize", o.cfg.BatchSize))

	for batchStart := start; batchStart < len(list); batchStart += o.cfg.BatchSize {
		batchEnd := min(batchStart+o.cfg.BatchSize, len(list))

		if err := WaitClear(ctx, o.signal, o.cfg.SignalPollInterval); err != nil {
			return err
		}
		startedAt := o.now().UTC()

		for _, a := range list[batchStart:batchEnd] {
			for i, p := range o.pipelines {
				o.runPipeline(ctx, logger, p, a, chunks[i], known)
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		if err := o.signal.Raise(ctx, cycleID, startedAt); err != nil {
			return fmt.Errorf("raise batch signal: %w", err)
		}

		next := batchEnd
		if next >= len(list) {
			next = 0
		}
		if err := o.cursors.SaveIngestCursor(ctx, flightdb.SaveIngestCursorParams{
			Name:     o.cfg.CursorName,
			Position: int32(next),
			CycleID:  cycleID,
		}); err != nil {
			return fmt.Errorf("save cursor: %w", err)
		}
		batchesComplete.Add(ctx, 1)
		logger.Info("Airport batch complete",
			slog.Int("from", batchStart),
			slog.Int("to", batchEnd))
	}

	logger.Info("Ingestion cycle complete")
	return nil
}

func (o *Orchestrator) runPipeline(ctx context.Context, logger *slog.Logger, p Pipeline, a airports.Airport, chunks []timechunk.Chunk, known mapset.Set[string]) ingest.Result {
	res := p.Fetcher.Run(ctx, a.Key, chunks, known)
	attrs := []any{
		slog.String("pipeline", p.Name),
		slog.String("airport", a.Key.String()),
		slog.Int("requests", res.Requests),
		slog.Int("published", res.Published),
		slog.Int("dropped", res.Dropped),
	}
	if res.Err != nil {
		logger.Warn("Airport fetch ended early", append(attrs, slog.Any("error", res.Err))...)
	} else {
		logger.Debug("Airport fetched", attrs...)
	}
	return res
}

// runBackground walks every airport through the background pipelines.
func (o *Orchestrator) runBackground(ctx context.Context) error {
	list, err := o.registry.Airports(ctx)
	if err != nil {
		return fmt.Errorf("load airports: %w", err)
	}
	known := airports.KnownIATA(list)
	now := o.now().UTC()

	logger := o.logger.With(slog.String("task", "background-ingest"))
	failures := 0
	for _, p := range o.background {
		chunks, err := p.chunks(now)
		if err != nil {
			return fmt.Errorf("chunk %s window: %w", p.Name, err)
		}
		for _, a := range list {
			if err := ctx.Err(); err != nil {
				return err
			}
			if res := o.runPipeline(ctx, logger, p, a, chunks, known); res.Err != nil {
				failures++
			}
		}
	}
	logger.Info("Background ingest finished",
		slog.Int("airports", len(list)),
		slog.Int("failedAirports", failures))
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
