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

// Package dbopen turns PREFIX_* environment variables into a traced pgx pool.
package dbopen

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgx-contrib/pgxotel"

	"github.com/cardinalhq/airharvest/migrations"
)

const defaultPort = "5432"

var ErrDatabaseNotConfigured = errors.New("database connection configuration is unavailable")

// Settings are the connection parameters for one database.
type Settings struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int32
	AppName  string
}

// SettingsFromEnv reads PREFIX_URL or PREFIX_HOST/PORT/USER/PASSWORD/DBNAME/SSLMODE,
// plus PREFIX_MAX_CONNS. A trailing "_" on prefix is optional.
func SettingsFromEnv(prefix string) Settings {
	prefix = strings.TrimSuffix(prefix, "_") + "_"
	env := func(name string) string { return os.Getenv(prefix + name) }

	s := Settings{
		URL:      env("URL"),
		Host:     env("HOST"),
		Port:     env("PORT"),
		User:     env("USER"),
		Password: env("PASSWORD"),
		DBName:   env("DBNAME"),
		SSLMode:  env("SSLMODE"),
		AppName:  applicationName(os.Getenv("OTEL_SERVICE_NAME")),
	}
	if n, err := strconv.ParseInt(env("MAX_CONNS"), 10, 32); err == nil && n > 0 {
		s.MaxConns = int32(n)
	}
	return s
}

// ConnString builds the postgres URL. An explicit URL wins over the parts.
func (s Settings) ConnString(prefix string) (string, error) {
	if s.URL != "" {
		return s.URL, nil
	}
	prefix = strings.TrimSuffix(prefix, "_") + "_"

	var missing []string
	if s.Host == "" {
		missing = append(missing, prefix+"HOST")
	}
	if s.DBName == "" {
		missing = append(missing, prefix+"DBNAME")
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	port := s.Port
	if port == "" {
		port = defaultPort
	}
	u := url.URL{
		Scheme: "postgresql",
		Host:   net.JoinHostPort(s.Host, port),
		Path:   s.DBName,
	}
	switch {
	case s.User != "" && s.Password != "":
		u.User = url.UserPassword(s.User, s.Password)
	case s.User != "":
		u.User = url.User(s.User)
	}

	q := url.Values{}
	if s.SSLMode != "" {
		q.Set("sslmode", s.SSLMode)
	}
	if s.AppName != "" {
		q.Set("application_name", s.AppName)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// GetDatabaseURLFromEnv is SettingsFromEnv(prefix).ConnString(prefix).
func GetDatabaseURLFromEnv(prefix string) (string, error) {
	return SettingsFromEnv(prefix).ConnString(prefix)
}

// applicationName keeps [A-Za-z0-9_-] and fits postgres' 63 byte limit.
func applicationName(name string) string {
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// Options controls how a pool is opened.
type Options struct {
	MigrationCheckOptions []migrations.CheckOption
}

// SkipMigrationCheck opens without comparing the schema version.
func SkipMigrationCheck() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{
		migrations.WithCheckMode(migrations.CheckModeSkip),
	}}
}

// WarnOnMigrationMismatch logs schema version mismatches and continues.
func WarnOnMigrationMismatch() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{
		migrations.WithCheckMode(migrations.CheckModeWarn),
	}}
}

// WaitForMigrations blocks until the schema reaches the expected version.
func WaitForMigrations() Options {
	return Options{MigrationCheckOptions: []migrations.CheckOption{
		migrations.WithCheckMode(migrations.CheckModeWait),
	}}
}

// NewPool opens a pgx pool for the database described by the PREFIX_*
// environment variables, tracing queries under tracerName.
func NewPool(ctx context.Context, prefix, tracerName string) (*pgxpool.Pool, error) {
	settings := SettingsFromEnv(prefix)
	dbURL, err := settings.ConnString(prefix)
	if err != nil {
		return nil, errors.Join(ErrDatabaseNotConfigured, err)
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse %s database url: %w", prefix, err)
	}
	if settings.MaxConns > 0 {
		cfg.MaxConns = settings.MaxConns
	}
	cfg.ConnConfig.Tracer = &pgxotel.QueryTracer{
		Name: tracerName,
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s pool: %w", tracerName, err)
	}
	return pool, nil
}
