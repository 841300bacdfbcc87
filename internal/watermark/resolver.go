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

// Package watermark computes where an airport's ingestion should resume.
package watermark

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/records"
)

// DefaultBackdateMargin is re-ingested behind every watermark so late
// corrections upstream are picked up.
const DefaultBackdateMargin = 24 * time.Hour

// ErrNoWatermark is returned for kinds that are not ingested from a provider.
var ErrNoWatermark = errors.New("kind has no watermark")

// Store reads the newest stored timestamp per airport. Flight watermarks
// come from backfilled history only; timetable rows cover today and must not
// move the history resume point.
type Store interface {
	LatestHistoricalDeparture(ctx context.Context, originIata string) (*time.Time, error)
	LatestWeatherObservation(ctx context.Context, icaoCode string) (*time.Time, error)
}

type Resolver struct {
	store  Store
	margin time.Duration
}

// NewResolver returns a Resolver that backdates by margin. A negative margin
// is treated as zero.
func NewResolver(store Store, margin time.Duration) *Resolver {
	return &Resolver{store: store, margin: max(margin, 0)}
}

// Resolve returns the resume point for key and kind. ok is false when
// nothing has been stored yet, meaning the full window must be fetched.
func (r *Resolver) Resolve(ctx context.Context, key airports.Key, kind records.Kind) (resume time.Time, ok bool, err error) {
	var latest *time.Time
	switch kind {
	case records.KindFlight:
		latest, err = r.store.LatestHistoricalDeparture(ctx, key.IATA)
	case records.KindWeather:
		latest, err = r.store.LatestWeatherObservation(ctx, key.ICAO)
	default:
		return time.Time{}, false, fmt.Errorf("%w: %s", ErrNoWatermark, kind)
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("resolve %s watermark for %s: %w", kind, key, err)
	}
	if latest == nil || latest.IsZero() {
		return time.Time{}, false, nil
	}
	return latest.UTC().Add(-r.margin), true, nil
}
