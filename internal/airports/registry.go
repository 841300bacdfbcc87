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

// Package airports loads the set of airports to ingest and keeps it cached.
package airports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jellydator/ttlcache/v3"

	"github.com/cardinalhq/airharvest/flightdb"
)

// CacheKey is the fixed key the airport list is stored under, locally and in Redis.
const CacheKey = "all_airports_in_db"

// DefaultTTL bounds how stale the airport list may get.
const DefaultTTL = 24 * time.Hour

// Key identifies one airport's ingestion stream.
type Key struct {
	ICAO      string  `json:"icao"`
	IATA      string  `json:"iata"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (k Key) String() string {
	return k.ICAO + "/" + k.IATA
}

// Coordinates renders "lat,lon" the way the weather provider expects it.
func (k Key) Coordinates() string {
	return fmt.Sprintf("%g,%g", k.Latitude, k.Longitude)
}

type Airport struct {
	Key
	Name string `json:"name"`
}

// Source is the authoritative airport table.
type Source interface {
	ListAirports(ctx context.Context) ([]flightdb.Airport, error)
}

// Registry is a read-through cache in front of Source. Within the TTL the
// cached list is returned without consulting anything else.
type Registry struct {
	source Source
	shared SharedCache
	ttl    time.Duration
	cache  *ttlcache.Cache[string, []Airport]
	logger *slog.Logger
}

// NewRegistry builds a Registry. shared may be nil, in which case only the
// in-process tier is used.
func NewRegistry(source Source, shared SharedCache, ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		source: source,
		shared: shared,
		ttl:    ttl,
		cache: ttlcache.New(
			ttlcache.WithTTL[string, []Airport](ttl),
			ttlcache.WithDisableTouchOnHit[string, []Airport](),
		),
		logger: slog.Default().With(slog.String("component", "airports")),
	}
}

// Airports returns every airport, from the local cache, the shared cache or
// the database, in that order.
func (r *Registry) Airports(ctx context.Context) ([]Airport, error) {
	var loadErr error
	loader := ttlcache.LoaderFunc[string, []Airport](
		func(cache *ttlcache.Cache[string, []Airport], key string) *ttlcache.Item[string, []Airport] {
			airports, err := r.load(ctx)
			if err != nil {
				loadErr = err
				return nil
			}
			return cache.Set(key, airports, ttlcache.DefaultTTL)
		},
	)

	item := r.cache.Get(CacheKey, ttlcache.WithLoader(loader))
	if item != nil {
		return item.Value(), nil
	}
	if loadErr != nil {
		return nil, loadErr
	}
	return nil, errors.New("failed to get airports from cache")
}

// Invalidate drops the local copy. The shared copy expires on its own.
func (r *Registry) Invalidate() {
	r.cache.Delete(CacheKey)
}

func (r *Registry) load(ctx context.Context) ([]Airport, error) {
	if r.shared != nil {
		airports, err := r.readShared(ctx)
		switch {
		case err == nil:
			return airports, nil
		case errors.Is(err, ErrCacheMiss):
		default:
			r.logger.Warn("Shared airport cache unavailable, reading database", slog.Any("error", err))
		}
	}

	rows, err := r.source.ListAirports(ctx)
	if err != nil {
		return nil, fmt.Errorf("list airports: %w", err)
	}
	airports := fromRows(rows, r.logger)
	r.logger.Info("Loaded airports from database", slog.Int("count", len(airports)))

	if r.shared != nil {
		if err := r.writeShared(ctx, airports); err != nil {
			r.logger.Warn("Failed to populate shared airport cache", slog.Any("error", err))
		}
	}
	return airports, nil
}

func (r *Registry) readShared(ctx context.Context) ([]Airport, error) {
	data, err := r.shared.Get(ctx, CacheKey)
	if err != nil {
		return nil, err
	}
	var airports []Airport
	if err := json.Unmarshal(data, &airports); err != nil {
		return nil, fmt.Errorf("decode cached airports: %w", err)
	}
	return airports, nil
}

func (r *Registry) writeShared(ctx context.Context, airports []Airport) error {
	data, err := json.Marshal(airports)
	if err != nil {
		return err
	}
	return r.shared.Set(ctx, CacheKey, data, r.ttl)
}

func fromRows(rows []flightdb.Airport, logger *slog.Logger) []Airport {
	airports := make([]Airport, 0, len(rows))
	for _, row := range rows {
		icao := strings.ToUpper(strings.TrimSpace(row.IcaoCode))
		iata := strings.ToUpper(strings.TrimSpace(row.IataCode))
		if icao == "" || iata == "" {
			logger.Warn("Skipping airport without codes", slog.Int64("id", row.ID), slog.String("name", row.Name))
			continue
		}
		airports = append(airports, Airport{
			Key: Key{
				ICAO:      icao,
				IATA:      iata,
				Latitude:  row.LatitudeDeg,
				Longitude: row.LongitudeDeg,
			},
			Name: row.Name,
		})
	}
	return airports
}

// KnownIATA is the closed set of airport codes records may reference.
func KnownIATA(airports []Airport) mapset.Set[string] {
	known := mapset.NewThreadUnsafeSetWithSize[string](len(airports))
	for _, a := range airports {
		known.Add(a.IATA)
	}
	return known
}
