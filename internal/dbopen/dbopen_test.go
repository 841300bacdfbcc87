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

package dbopen

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, prefix string) {
	for _, k := range []string{"URL", "HOST", "PORT", "USER", "PASSWORD", "DBNAME", "SSLMODE", "MAX_CONNS"} {
		t.Setenv(prefix+k, "")
	}
	t.Setenv("OTEL_SERVICE_NAME", "")
}

func TestGetDatabaseURLFromEnv(t *testing.T) {
	clearEnv(t, "FLIGHTDB_")
	t.Setenv("FLIGHTDB_HOST", "db")
	t.Setenv("FLIGHTDB_DBNAME", "flights")
	t.Setenv("FLIGHTDB_USER", "air")
	t.Setenv("FLIGHTDB_PASSWORD", "s3cret")
	t.Setenv("FLIGHTDB_SSLMODE", "disable")
	t.Setenv("OTEL_SERVICE_NAME", "air harvest")

	got, err := GetDatabaseURLFromEnv("FLIGHTDB")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://air:s3cret@db:5432/flights?application_name=air_harvest&sslmode=disable", got)
}

func TestGetDatabaseURLFromEnvPrefersURL(t *testing.T) {
	clearEnv(t, "FLIGHTDB_")
	t.Setenv("FLIGHTDB_URL", "postgresql://x/y")
	got, err := GetDatabaseURLFromEnv("FLIGHTDB_")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://x/y", got)
}

func TestGetDatabaseURLFromEnvMissing(t *testing.T) {
	clearEnv(t, "FLIGHTDB_")
	_, err := GetDatabaseURLFromEnv("FLIGHTDB")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLIGHTDB_HOST")
	assert.Contains(t, err.Error(), "FLIGHTDB_DBNAME")
}

func TestNewPoolNotConfigured(t *testing.T) {
	clearEnv(t, "FLIGHTDB_")
	_, err := NewPool(context.Background(), "FLIGHTDB", "flightdb")
	assert.ErrorIs(t, err, ErrDatabaseNotConfigured)
}

func TestSettingsFromEnv(t *testing.T) {
	clearEnv(t, "FLIGHTDB_")
	t.Setenv("FLIGHTDB_HOST", "db")
	t.Setenv("FLIGHTDB_PORT", "6543")
	t.Setenv("FLIGHTDB_DBNAME", "flights")
	t.Setenv("FLIGHTDB_USER", "reader")
	t.Setenv("FLIGHTDB_MAX_CONNS", "12")
	t.Setenv("OTEL_SERVICE_NAME", "airharvest-stream")

	s := SettingsFromEnv("FLIGHTDB")
	assert.Equal(t, int32(12), s.MaxConns)
	got, err := s.ConnString("FLIGHTDB")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://reader@db:6543/flights?application_name=airharvest-stream", got)
}

func TestApplicationName(t *testing.T) {
	assert.Equal(t, "a_b-c", applicationName("a/b-c"))
	assert.Len(t, applicationName(strings.Repeat("x", 80)), 63)
	assert.Equal(t, "", applicationName(""))
}
