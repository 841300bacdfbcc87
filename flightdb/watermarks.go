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
	"time"
)

const latestHistoricalDeparture = `-- name: LatestHistoricalDeparture :one
SELECT max(scheduled_departure_time)::timestamptz
FROM flights
WHERE origin_airport_iata = $1 AND historical
`

// LatestHistoricalDeparture returns the newest scheduled departure the
// history backfill stored for flights leaving originIata, or nil when there
// are none. Timetable rows are not counted.
func (q *Queries) LatestHistoricalDeparture(ctx context.Context, originIata string) (*time.Time, error) {
	row := q.db.QueryRow(ctx, latestHistoricalDeparture, originIata)
	var t *time.Time
	err := row.Scan(&t)
	return t, err
}

const latestWeatherObservation = `-- name: LatestWeatherObservation :one
SELECT max(datetime)::timestamptz
FROM weather
WHERE icao_code = $1
`

// LatestWeatherObservation returns the newest hourly observation stored for
// icaoCode, or nil when there are none.
func (q *Queries) LatestWeatherObservation(ctx context.Context, icaoCode string) (*time.Time, error) {
	row := q.db.QueryRow(ctx, latestWeatherObservation, icaoCode)
	var t *time.Time
	err := row.Scan(&t)
	return t, err
}
