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

package migrations

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/pgx"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

//go:embed *.sql
var migrationFiles embed.FS

// MigrationsTable is where golang-migrate records the applied flightdb version.
const MigrationsTable = "gomigrate_flightdb"

// withMigrator runs fn with a golang-migrate instance reading the embedded
// files and writing through pool.
func withMigrator(pool *pgxpool.Pool, fn func(*migrate.Migrate) error) error {
	source, err := iofs.New(migrationFiles, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer func() { _ = db.Close() }()

	driver, err := pgx.WithInstance(db, &pgx.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		return fmt.Errorf("migrate pgx driver: %w", err)
	}
	defer func() { _ = driver.Close() }()

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}
	return fn(m)
}

// version is m.Version with "never migrated" reported as version 0.
func version(m *migrate.Migrate) (uint, bool, error) {
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// RunMigrationsUp applies every pending migration. A dirty schema is refused.
func RunMigrationsUp(ctx context.Context, pool *pgxpool.Pool) error {
	return withMigrator(pool, func(m *migrate.Migrate) error {
		from, dirty, err := version(m)
		if err != nil {
			return fmt.Errorf("read %s version: %w", dbName, err)
		}
		if dirty {
			return fmt.Errorf("%s migration %d is dirty, fix it before migrating", dbName, from)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s up: %w", dbName, err)
		}
		to, _, _ := version(m)
		slog.Info("flightdb migrations applied", slog.Uint64("from", uint64(from)), slog.Uint64("version", uint64(to)))
		return nil
	})
}

// RunMigrationsDown reverts every migration.
func RunMigrationsDown(ctx context.Context, pool *pgxpool.Pool) error {
	return withMigrator(pool, func(m *migrate.Migrate) error {
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("migrate %s down: %w", dbName, err)
		}
		return nil
	})
}

func currentVersion(pool *pgxpool.Pool) (v uint, dirty bool, err error) {
	err = withMigrator(pool, func(m *migrate.Migrate) error {
		v, dirty, err = version(m)
		return err
	})
	return v, dirty, err
}
