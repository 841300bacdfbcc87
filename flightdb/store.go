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

package flightdb

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cardinalhq/airharvest/flightdb/migrations"
	"github.com/cardinalhq/airharvest/internal/dbopen"
)

// Store is the generated Queries bound to a pool, plus transactions.
type Store struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{Queries: New(pool), pool: pool}
}

// Open connects to flightdb using the FLIGHTDB_* environment and checks the
// schema version. Only the first opts value is used.
func Open(ctx context.Context, opts ...dbopen.Options) (*Store, error) {
	pool, err := dbopen.NewPool(ctx, "FLIGHTDB", "flightdb")
	if err != nil {
		return nil, err
	}

	var checks dbopen.Options
	if len(opts) > 0 {
		checks = opts[0]
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping flightdb: %w", err)
	}
	if err := migrations.CheckVersion(ctx, pool, checks.MigrationCheckOptions...); err != nil {
		pool.Close()
		return nil, err
	}
	return NewStore(pool), nil
}

func (store *Store) Pool() *pgxpool.Pool {
	return store.pool
}

func (store *Store) Close() {
	if store.pool != nil {
		store.pool.Close()
	}
}

// execTx runs fn against a Store bound to one transaction. pgx commits when
// fn returns nil and rolls back otherwise.
func (store *Store) execTx(ctx context.Context, fn func(*Store) error) error {
	return pgx.BeginFunc(ctx, store.pool, func(tx pgx.Tx) error {
		return fn(&Store{Queries: New(tx), pool: store.pool})
	})
}
