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

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/orchestrator"
)

var ingestOnce bool

func init() {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Fetch flights and weather for every airport and publish them to Kafka",
		RunE: func(_ *cobra.Command, _ []string) error {
			attrs := attribute.NewSet(attribute.String("action", "ingest"))
			return runWithTelemetry("airharvest-ingest", &attrs, func(ctx context.Context) error {
				return serve(ctx, serveOptions{ingest: true, once: ingestOnce})
			})
		},
	}
	cmd.Flags().BoolVar(&ingestOnce, "once", false, "Run a single ingestion cycle and exit")

	rootCmd.AddCommand(cmd)
}

// runIngest drives the orchestrator until ctx ends, or for one cycle when once is set.
func (a *app) runIngest(ctx context.Context, store *flightdb.Store, once bool, started func(*orchestrator.Orchestrator)) error {
	producer, err := a.factory.CreateProducer()
	if err != nil {
		return err
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("Failed to close producer", slog.Any("error", err))
		}
	}()

	o, closeRegistry := a.buildOrchestrator(ctx, store, producer)
	defer closeRegistry()
	if started != nil {
		started(o)
	}

	if once {
		return o.RunCycle(ctx)
	}
	return o.Run(ctx)
}
