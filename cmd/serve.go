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
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/airharvest/internal/healthcheck"
	"github.com/cardinalhq/airharvest/internal/orchestrator"
)

type serveOptions struct {
	ingest bool
	stream bool
	once   bool
}

// serve runs the streaming cycle, the ingestion cycle or both. Topics are
// ensured before anything publishes or consumes.
func serve(ctx context.Context, opts serveOptions) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	if opts.ingest {
		if err := a.cfg.RequireProviderKeys(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	health := a.startHealth(gctx, g)
	health.SetReadyCondition("kafka_topics", false)
	health.SetReadyCondition("flightdb", false)

	if err := a.ensureTopics(ctx); err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	health.SetReadyCondition("kafka_topics", true)

	store, err := openStore(ctx)
	if err != nil {
		health.SetStatus(healthcheck.StatusUnhealthy)
		return err
	}
	defer store.Close()
	health.SetReadyCondition("flightdb", true)

	if opts.stream {
		if err := a.startStreaming(gctx, g, store); err != nil {
			return err
		}
		health.Report("streaming", func() any {
			return map[string]any{
				"mode":   a.cfg.Streaming.Mode,
				"topics": a.topics.GetAllTopics(),
			}
		})
	}
	if opts.ingest {
		g.Go(func() error {
			if opts.once {
				// Nothing else should outlive a single cycle.
				defer cancel()
			}
			return a.runIngest(gctx, store, opts.once, func(o *orchestrator.Orchestrator) {
				health.Report("orchestrator", func() any {
					return map[string]any{
						"state":   o.State().String(),
						"running": o.Supervisor().Running(),
					}
				})
			})
		})
	}

	health.SetStatus(healthcheck.StatusHealthy)
	err = g.Wait()
	if opts.once && err == nil {
		slog.Info("Single ingestion cycle finished")
	}
	return err
}

// startHealth serves probes on g. A port that cannot be bound is logged and
// does not stop the process.
func (a *app) startHealth(ctx context.Context, g *errgroup.Group) *healthcheck.Server {
	health := healthcheck.NewServer(a.cfg.Health)
	g.Go(func() error {
		if err := health.Start(ctx); err != nil {
			slog.Error("Health check server failed", slog.Any("error", err))
		}
		return nil
	})
	return health
}
