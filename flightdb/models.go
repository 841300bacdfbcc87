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
	"time"

	"github.com/google/uuid"
)

type Airport struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	IcaoCode     string    `json:"icao_code"`
	IataCode     string    `json:"iata_code"`
	LatitudeDeg  float64   `json:"latitude_deg"`
	LongitudeDeg float64   `json:"longitude_deg"`
	CountryCode  *string   `json:"country_code"`
	City         *string   `json:"city"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type IngestCursor struct {
	Name      string    `json:"name"`
	Position  int32     `json:"position"`
	CycleID   string    `json:"cycle_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

type BatchSignal struct {
	ID             uuid.UUID  `json:"id"`
	CycleID        string     `json:"cycle_id"`
	BatchStartedAt time.Time  `json:"batch_started_at"`
	CreatedAt      time.Time  `json:"created_at"`
	ConsumedAt     *time.Time `json:"consumed_at"`
}
