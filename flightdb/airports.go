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
)

const listAirports = `-- name: ListAirports :many
SELECT id, name, icao_code, iata_code, latitude_deg, longitude_deg, country_code, city, created_at, updated_at
FROM airports
ORDER BY id
`

func (q *Queries) ListAirports(ctx context.Context) ([]Airport, error) {
	rows, err := q.db.Query(ctx, listAirports)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Airport
	for rows.Next() {
		var i Airport
		if err := rows.Scan(
			&i.ID,
			&i.Name,
			&i.IcaoCode,
			&i.IataCode,
			&i.LatitudeDeg,
			&i.LongitudeDeg,
			&i.CountryCode,
			&i.City,
			&i.CreatedAt,
			&i.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertAirport = `-- name: UpsertAirport :one
INSERT INTO airports (name, icao_code, iata_code, latitude_deg, longitude_deg, country_code, city)
VALUES ($1, upper($2), upper($3), $4, $5, $6, $7)
ON CONFLICT (icao_code) DO UPDATE SET
  name = EXCLUDED.name,
  iata_code = EXCLUDED.iata_code,
  latitude_deg = EXCLUDED.latitude_deg,
  longitude_deg = EXCLUDED.longitude_deg,
  country_code = EXCLUDED.country_code,
  city = EXCLUDED.city,
  updated_at = now()
RETURNING id
`

type UpsertAirportParams struct {
	Name         string  `json:"name"`
	IcaoCode     string  `json:"icao_code"`
	IataCode     string  `json:"iata_code"`
	LatitudeDeg  float64 `json:"latitude_deg"`
	LongitudeDeg float64 `json:"longitude_deg"`
	CountryCode  *string `json:"country_code"`
	City         *string `json:"city"`
}

func (q *Queries) UpsertAirport(ctx context.Context, arg UpsertAirportParams) (int64, error) {
	row := q.db.QueryRow(ctx, upsertAirport,
		arg.Name,
		arg.IcaoCode,
		arg.IataCode,
		arg.LatitudeDeg,
		arg.LongitudeDeg,
		arg.CountryCode,
		arg.City,
	)
	var id int64
	err := row.Scan(&id)
	return id, err
}
