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
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/airharvest/migrations"
)

const dbName = "flightdb"

// CheckVersion verifies that flightdb is at the migration version embedded in this binary.
func CheckVersion(ctx context.Context, pool *pgxpool.Pool, options ...migrations.CheckOption) error {
	if val := os.Getenv("FLIGHTDB_MIGRATION_CHECK_ENABLED"); val != "" && strings.ToLower(val) != "true" {
		slog.Debug("Migration version checking disabled for flightdb")
		return nil
	}

	opts := migrations.Resolve(options...)
	if opts.Mode == migrations.CheckModeSkip {
		slog.Debug("Migration version checking skipped for flightdb")
		return nil
	}

	expected, err := LatestVersion(migrationFiles)
	if err != nil {
		return fmt.Errorf("latest embedded %s migration: %w", dbName, err)
	}

	return waitForVersion(ctx, expected, opts, func() (uint, bool, error) {
		return currentVersion(pool)
	})
}

// LatestVersion returns the highest N in the N_name.up.sql files of fsys.
func LatestVersion(fsys fs.ReadDirFS) (uint, error) {
	entries, err := fsys.ReadDir(".")
	if err != nil {
		return 0, fmt.Errorf("read migrations: %w", err)
	}

	var maxVersion uint
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		version, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		maxVersion = max(maxVersion, uint(version))
	}

	if maxVersion == 0 {
		return 0, errors.New("no N_name.up.sql migrations found")
	}
	return maxVersion, nil
}

type versionFunc func() (version uint, dirty bool, err error)

// waitForVersion compares the schema against expected. A dirty or newer
// schema fails unless warning; an older one is polled until it catches up
// or opts.Timeout passes.
func waitForVersion(ctx context.Context, expected uint, opts migrations.CheckOptions, current versionFunc) error {
	warnOnly := opts.Mode == migrations.CheckModeWarn
	logger := slog.Default().With(slog.String("database", dbName), slog.Uint64("expected_version", uint64(expected)))

	version, dirty, err := current()
	if err != nil {
		return fmt.Errorf("read %s migration version: %w", dbName, err)
	}
	logger = logger.With(slog.Uint64("current_version", uint64(version)))

	if dirty {
		if !opts.AllowDirty && !warnOnly {
			return fmt.Errorf("%s migration %d is dirty, fix it before starting", dbName, version)
		}
		logger.Warn("Schema migration is dirty, continuing")
	}

	switch {
	case version == expected:
		return nil
	case warnOnly:
		logger.Warn("Schema version differs from this binary, continuing")
		return nil
	case version > expected:
		return fmt.Errorf("%s schema version %d is newer than %d, upgrade this binary", dbName, version, expected)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(opts.RetryInterval)
	defer ticker.Stop()

	for version != expected {
		logger.Info("Waiting for migrations", slog.Uint64("version", uint64(version)))
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s migrations: at version %d, want %d: %w", dbName, version, expected, context.Cause(ctx))
		case <-ticker.C:
		}
		if version, _, err = current(); err != nil {
			return fmt.Errorf("read %s migration version: %w", dbName, err)
		}
	}
	logger.Info("Schema reached expected version")
	return nil
}
