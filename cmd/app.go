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

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cardinalhq/airharvest/config"
	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/dbopen"
	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/ingest"
	"github.com/cardinalhq/airharvest/internal/orchestrator"
	"github.com/cardinalhq/airharvest/internal/provider"
	"github.com/cardinalhq/airharvest/internal/publisher"
	"github.com/cardinalhq/airharvest/internal/watermark"
)

// app carries what every long-running command needs.
type app struct {
	cfg     *config.Config
	topics  *config.TopicRegistry
	factory *fly.Factory
}

func loadApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	topics, err := cfg.TopicRegistry()
	if err != nil {
		return nil, err
	}
	return &app{
		cfg:     cfg,
		topics:  topics,
		factory: fly.NewFactory(&cfg.Kafka),
	}, nil
}

// ensureTopics creates missing topics. Nothing may publish or consume before it returns.
func (a *app) ensureTopics(ctx context.Context) error {
	admin, err := fly.NewAdminClient(&a.cfg.Kafka)
	if err != nil {
		return err
	}
	created, err := admin.EnsureTopics(ctx, a.topics.Specs())
	if err != nil {
		return fmt.Errorf("ensure topics: %w", err)
	}
	if len(created) > 0 {
		slog.Info("Created Kafka topics", slog.String("topics", strings.Join(created, ",")))
	} else {
		slog.Info("Kafka topics already present", slog.Int("count", len(a.topics.Specs())))
	}
	return nil
}

func openStore(ctx context.Context) (*flightdb.Store, error) {
	store, err := flightdb.Open(ctx, dbopen.WaitForMigrations())
	if err != nil {
		return nil, fmt.Errorf("failed to open flightdb: %w", err)
	}
	return store, nil
}

// airportRegistry wires the cache tiers. An unreachable Redis is logged and
// the registry runs without the shared tier.
func (a *app) airportRegistry(ctx context.Context, store *flightdb.Store) (*airports.Registry, func()) {
	opts := a.cfg.Cache.Redis()
	if !opts.Enabled() {
		return airports.NewRegistry(store, nil, a.cfg.Cache.TTL), func() {}
	}
	client, err := airports.DialRedis(ctx, opts)
	if err != nil {
		slog.Warn("Shared airport cache unavailable, continuing without it",
			slog.String("host", opts.Host), slog.Any("error", err))
		return airports.NewRegistry(store, nil, a.cfg.Cache.TTL), func() {}
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			slog.Warn("Failed to close redis client", slog.Any("error", err))
		}
	}
	return airports.NewRegistry(store, airports.NewRedisCache(client), a.cfg.Cache.TTL), closeFn
}

func (a *app) batchSignal(store *flightdb.Store) orchestrator.Signal {
	if a.cfg.Signal.Mode == config.SignalModeFile {
		return orchestrator.NewFileSignal(a.cfg.Signal.FlagFile)
	}
	return orchestrator.NewStoreSignal(store)
}

// pipelines returns the cycle pipelines and the background pipelines.
func (a *app) pipelines(wm ingest.Watermarks, pub ingest.Publisher) (cycle, background []orchestrator.Pipeline) {
	client := provider.NewHTTPClient(a.cfg.Providers.Timeout)
	edge := provider.NewAviationEdge(a.cfg.Providers.AviationEdgeKey, a.cfg.Providers.AviationEdgeURL, client)
	weather := provider.NewVisualCrossing(a.cfg.Providers.VisualCrossingKey, a.cfg.Providers.VisualCrossingURL, client)

	opts := func(topicKey string, o ingest.Options) ingest.Options {
		o.Topic = a.topics.GetTopic(topicKey)
		o.RequestDelay = a.cfg.Ingest.RequestDelay
		o.RateLimitCooldown = a.cfg.Ingest.RateLimitCooldown
		return o
	}

	cycle = []orchestrator.Pipeline{
		{
			Name:    "weather",
			Fetcher: ingest.NewFetcher(provider.WeatherSource{API: weather}, wm, pub, opts(config.TopicWeather, ingest.Options{Latency: a.cfg.Ingest.WeatherLatency})),
			Window:  a.cfg.Ingest.WeatherWindow,
		},
		{
			Name:    "flight-timetable",
			Fetcher: ingest.NewFetcher(provider.TimetableSource{API: edge}, wm, pub, opts(config.TopicFlight, ingest.Options{})),
		},
	}
	background = []orchestrator.Pipeline{
		{
			Name:    "flight-history",
			Fetcher: ingest.NewFetcher(provider.HistorySource{API: edge}, wm, pub, opts(config.TopicHistoricalFlight, ingest.Options{Latency: a.cfg.Ingest.FlightLatency})),
			Window:  a.cfg.Ingest.HistoryWindow,
		},
	}
	return cycle, background
}

// buildOrchestrator assembles the ingestion side around an open store and producer.
func (a *app) buildOrchestrator(ctx context.Context, store *flightdb.Store, producer fly.Producer) (*orchestrator.Orchestrator, func()) {
	registry, closeRegistry := a.airportRegistry(ctx, store)
	resolver := watermark.NewResolver(store, a.cfg.Ingest.BackdateMargin)
	cycle, background := a.pipelines(resolver, publisher.New(producer, publisher.WithMaxMessageBytes(a.cfg.Kafka.ProducerMaxMessageBytes)))

	o := orchestrator.New(registry, store, a.batchSignal(store), cycle, background, orchestrator.Config{
		BatchSize:          a.cfg.Orchestrator.BatchSize,
		CyclePeriod:        a.cfg.Orchestrator.CyclePeriod,
		SignalPollInterval: a.cfg.Signal.PollInterval,
	})
	return o, closeRegistry
}
