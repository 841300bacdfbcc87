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

	"github.com/cardinalhq/airharvest/internal/records"
)

const upsertFlight = `-- name: UpsertFlight :exec
INSERT INTO flights (
  flight_id, airline_name, airline_icao_code, airline_iata_code,
  scheduled_departure_time, actual_departure_time,
  scheduled_arrival_time, actual_arrival_time,
  origin_airport_iata, destination_airport_iata, delay, status, historical
) VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT ON CONSTRAINT unique_flight_per_schedule DO UPDATE SET
  actual_departure_time = EXCLUDED.actual_departure_time,
  scheduled_arrival_time = EXCLUDED.scheduled_arrival_time,
  actual_arrival_time = EXCLUDED.actual_arrival_time,
  delay = EXCLUDED.delay,
  status = EXCLUDED.status,
  historical = flights.historical OR EXCLUDED.historical,
  updated_at = now()
`

const insertWeather = `-- name: InsertWeather :exec
INSERT INTO weather (
  location, icao_code, iata_code, datetime,
  visibility, precipitation, precipitation_probability,
  wind_speed, wind_direction, temperature, humidity, pressure, cloud_cover
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT ON CONSTRAINT unique_weather_per_hour DO NOTHING
`

const insertPrediction = `-- name: InsertPrediction :exec
INSERT INTO predictions (unique_key, timestamp, stage, prediction)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT unique_prediction DO NOTHING
`

// UpsertFlights writes timetable flights in one transaction. A flight already
// stored under the same schedule key has its mutable columns refreshed. Rows
// are applied in order, so when a batch repeats a key the last record wins.
// It returns the number of rows inserted or updated.
func (store *Store) UpsertFlights(ctx context.Context, flights []records.Flight) (int64, error) {
	return store.upsertFlights(ctx, flights, false)
}

// UpsertHistoricalFlights is UpsertFlights for the history backfill. Rows it
// touches are marked historical and stay marked when the timetable later
// refreshes them; only marked rows move the history watermark.
func (store *Store) UpsertHistoricalFlights(ctx context.Context, flights []records.Flight) (int64, error) {
	return store.upsertFlights(ctx, flights, true)
}

func (store *Store) upsertFlights(ctx context.Context, flights []records.Flight, historical bool) (int64, error) {
	if len(flights) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, f := range flights {
		batch.Queue(upsertFlight,
			f.FlightID,
			f.AirlineName,
			f.AirlineIcaoCode,
			f.AirlineIataCode,
			f.ScheduledDepartureTime,
			f.ActualDepartureTime,
			f.ScheduledArrivalTime,
			f.ActualArrivalTime,
			f.OriginAirportIata,
			f.DestinationAirportIata,
			f.Delay,
			f.Status,
			historical,
		)
	}
	return store.sendBatchTx(ctx, "flights", batch)
}

// InsertWeather writes observations in one transaction, ignoring any that
// are already stored. It returns the number of new rows.
func (store *Store) InsertWeather(ctx context.Context, observations []records.Weather) (int64, error) {
	if len(observations) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, w := range observations {
		batch.Queue(insertWeather,
			w.Location,
			w.IcaoCode,
			w.IataCode,
			w.Datetime,
			w.Visibility,
			w.Precipitation,
			w.PrecipitationProbability,
			w.WindSpeed,
			w.WindDirection,
			w.Temperature,
			w.Humidity,
			w.Pressure,
			w.CloudCover,
		)
	}
	return store.sendBatchTx(ctx, "weather", batch)
}

// InsertPredictions writes predictions in one transaction, ignoring any that
// are already stored. It returns the number of new rows.
func (store *Store) InsertPredictions(ctx context.Context, predictions []records.Prediction) (int64, error) {
	if len(predictions) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, p := range predictions {
		batch.Queue(insertPrediction, p.UniqueKey, p.Timestamp, p.Stage, p.Prediction)
	}
	return store.sendBatchTx(ctx, "predictions", batch)
}

func (store *Store) sendBatchTx(ctx context.Context, table string, batch *pgx.Batch) (int64, error) {
	var affected int64
	err := store.execTx(ctx, func(tx *Store) error {
		results := tx.db.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := results.Exec()
			if err != nil {
				_ = results.Close()
				return fmt.Errorf("%s row %d: %w", table, i, err)
			}
			affected += tag.RowsAffected()
		}
		return results.Close()
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}
