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
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/airharvest/config"
	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/dbopen"
	"github.com/cardinalhq/airharvest/internal/orchestrator"
)

func init() {
	signalCmd := &cobra.Command{
		Use:   "batch-signal",
		Short: "Inspect or acknowledge the batch-complete signal",
		Long: `The ingester raises the batch-complete signal after every airport batch and waits
for it to be acknowledged before starting the next one. These commands let an
operator see or clear it by hand.`,
	}

	signalCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether a batch signal is waiting",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBatchSignal(cmd.Context(), func(ctx context.Context, a *app, store *flightdb.Store) error {
				return printSignalStatus(ctx, cmd.OutOrStdout(), a, store)
			})
		},
	})

	signalCmd.AddCommand(&cobra.Command{
		Use:   "ack",
		Short: "Acknowledge the pending batch signal so ingestion continues",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withBatchSignal(cmd.Context(), func(ctx context.Context, a *app, store *flightdb.Store) error {
				if err := a.batchSignal(store).Acknowledge(ctx); err != nil {
					return fmt.Errorf("acknowledge batch signal: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "batch signal acknowledged")
				return nil
			})
		},
	})

	rootCmd.AddCommand(signalCmd)
}

// withBatchSignal opens flightdb only when the signal lives there.
func withBatchSignal(ctx context.Context, fn func(ctx context.Context, a *app, store *flightdb.Store) error) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	if a.cfg.Signal.Mode == config.SignalModeFile {
		return fn(ctx, a, nil)
	}
	store, err := flightdb.Open(ctx, dbopen.WarnOnMigrationMismatch())
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(ctx, a, store)
}

func printSignalStatus(ctx context.Context, out io.Writer, a *app, store *flightdb.Store) error {
	if a.cfg.Signal.Mode == config.SignalModeFile {
		sig := orchestrator.NewFileSignal(a.cfg.Signal.FlagFile)
		pending, err := sig.Pending(ctx)
		if err != nil {
			return err
		}
		if !pending {
			fmt.Fprintf(out, "no signal pending (%s)\n", sig.Path())
			return nil
		}
		startedAt, err := sig.StartedAt()
		if err != nil {
			return fmt.Errorf("read %s: %w", sig.Path(), err)
		}
		fmt.Fprintf(out, "signal pending (%s), batch started %s\n", sig.Path(), startedAt.Format(time.RFC3339))
		return nil
	}

	pending, err := store.ListPendingBatchSignals(ctx)
	if err != nil {
		return err
	}
	writePendingSignals(out, pending)
	return nil
}

func writePendingSignals(out io.Writer, pending []flightdb.BatchSignal) {
	if len(pending) == 0 {
		fmt.Fprintln(out, "no signal pending")
		return
	}
	for _, s := range pending {
		fmt.Fprintf(out, "%s cycle=%s batch_started=%s raised=%s\n",
			s.ID, s.CycleID, s.BatchStartedAt.UTC().Format(time.RFC3339), s.CreatedAt.UTC().Format(time.RFC3339))
	}
}
