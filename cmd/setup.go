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

	"github.com/spf13/cobra"

	"github.com/cardinalhq/airharvest/flightdb/migrations"
)

var (
	skipDB    bool
	skipKafka bool
)

func init() {
	SetupCmd.Flags().BoolVar(&skipDB, "skip-db", false, "Skip database migrations")
	SetupCmd.Flags().BoolVar(&skipKafka, "skip-kafka", false, "Skip Kafka topic setup")
	rootCmd.AddCommand(SetupCmd)
}

var SetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Run flightdb migrations and create the Kafka topics",
	RunE:  setup,
}

type setupStep struct {
	name string
	skip bool
	run  func(ctx context.Context) error
}

func setup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	steps := []setupStep{
		{name: "flightdb migrations", skip: skipDB, run: func(ctx context.Context) error {
			return migrateFlightDB(ctx, migrations.RunMigrationsUp)
		}},
		{name: "kafka topics", skip: skipKafka, run: func(ctx context.Context) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			return a.ensureTopics(ctx)
		}},
	}
	for _, step := range steps {
		if step.skip {
			slog.Info("Skipping setup step", slog.String("step", step.name))
			continue
		}
		slog.Info("Running setup step", slog.String("step", step.name))
		if err := step.run(ctx); err != nil {
			return fmt.Errorf("setup %s: %w", step.name, err)
		}
	}
	slog.Info("Setup complete")
	return nil
}
