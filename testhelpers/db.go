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

package testhelpers

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/flightdb"
	flightdbmigrations "github.com/cardinalhq/airharvest/flightdb/migrations"
	"github.com/cardinalhq/airharvest/internal/dbopen"
	"github.com/cardinalhq/airharvest/internal/idgen"
)

// testSettings reads FLIGHTDB_* like the service does, filling in a local
// default for anything unset. FLIGHTDB_DBNAME names the maintenance database
// used to create and drop scratch databases.
func testSettings() dbopen.Settings {
	s := dbopen.SettingsFromEnv("FLIGHTDB")
	s.URL = ""
	if s.Host == "" {
		s.Host = "localhost"
	}
	if s.User == "" {
		s.User = os.Getenv("USER")
	}
	if s.DBName == "" {
		s.DBName = "testing_flightdb"
	}
	if s.SSLMode == "" {
		s.SSLMode = "disable"
	}
	return s
}

func connect(t *testing.T, ctx context.Context, s dbopen.Settings) *pgxpool.Pool {
	t.Helper()
	dsn, err := s.ConnString("FLIGHTDB")
	require.NoError(t, err)
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "connect to %s", s.DBName)
	return pool
}

// SetupTestFlightDB creates a scratch database with migrations applied and
// drops it when the test ends.
func SetupTestFlightDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	base := testSettings()
	admin := connect(t, ctx, base)
	t.Cleanup(admin.Close)

	scratch := base
	scratch.DBName = "test_flightdb_" + idgen.NextBase32ID()
	ident := pgx.Identifier{scratch.DBName}.Sanitize()

	_, err := admin.Exec(ctx, "CREATE DATABASE "+ident)
	require.NoError(t, err, "create %s", scratch.DBName)

	pool := connect(t, ctx, scratch)
	t.Cleanup(func() {
		pool.Close()
		if _, err := admin.Exec(context.Background(), "DROP DATABASE IF EXISTS "+ident); err != nil {
			slog.Error("Failed to drop test database", slog.String("dbName", scratch.DBName), slog.Any("error", err))
		}
	})

	require.NoError(t, flightdbmigrations.RunMigrationsUp(ctx, pool))
	return pool
}

// NewTestFlightDBStore is a Store over SetupTestFlightDB.
func NewTestFlightDBStore(t *testing.T) *flightdb.Store {
	return flightdb.NewStore(SetupTestFlightDB(t))
}
