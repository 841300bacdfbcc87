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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/airharvest/flightdb/migrations"
	"github.com/cardinalhq/airharvest/internal/dbopen"
)

var (
	migrateDown bool
	migrateYes  bool
)

func init() {
	MigrateCmd.Flags().BoolVar(&migrateDown, "down", false, "Revert every flightdb migration")
	MigrateCmd.Flags().BoolVar(&migrateYes, "yes", false, "Confirm --down; it drops all harvested data")
	rootCmd.AddCommand(MigrateCmd)
}

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run flightdb migrations",
	Long:  "Apply the embedded flightdb migrations, or revert them with --down --yes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if migrateDown {
			if !migrateYes {
				return errors.New("refusing to migrate down without --yes")
			}
			return migrateFlightDB(cmd.Context(), migrations.RunMigrationsDown)
		}
		return migrateFlightDB(cmd.Context(), migrations.RunMigrationsUp)
	},
}

func migrateFlightDB(ctx context.Context, run func(context.Context, *pgxpool.Pool) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	pool, err := dbopen.NewPool(ctx, "FLIGHTDB", "flightdb")
	if err != nil {
		return fmt.Errorf("failed to connect to flightdb: %w", err)
	}
	defer pool.Close()

	slog.Info("Running flightdb migrations")
	if err := run(ctx, pool); err != nil {
		return fmt.Errorf("failed to migrate flightdb: %w", err)
	}
	slog.Info("flightdb migrations completed successfully")
	return nil
}
