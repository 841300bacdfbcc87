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

package streaming

import (
	"context"

	"github.com/cardinalhq/airharvest/internal/records"
)

// Sink persists a batch of records in one call and reports rows affected.
type Sink[T any] interface {
	Persist(ctx context.Context, batch []T) (int64, error)
}

// SinkFunc adapts a function to Sink.
type SinkFunc[T any] func(ctx context.Context, batch []T) (int64, error)

func (f SinkFunc[T]) Persist(ctx context.Context, batch []T) (int64, error) {
	return f(ctx, batch)
}

type FlightStore interface {
	UpsertFlights(ctx context.Context, flights []records.Flight) (int64, error)
	UpsertHistoricalFlights(ctx context.Context, flights []records.Flight) (int64, error)
}

type WeatherStore interface {
	InsertWeather(ctx context.Context, observations []records.Weather) (int64, error)
}

type PredictionStore interface {
	InsertPredictions(ctx context.Context, predictions []records.Prediction) (int64, error)
}

// FlightSink upserts flights, refreshing status and timing columns on conflict.
func FlightSink(store FlightStore) Sink[records.Flight] {
	return SinkFunc[records.Flight](store.UpsertFlights)
}

// HistoricalFlightSink upserts backfilled flights and marks them historical.
func HistoricalFlightSink(store FlightStore) Sink[records.Flight] {
	return SinkFunc[records.Flight](store.UpsertHistoricalFlights)
}

// WeatherSink inserts observations, ignoring ones already stored.
func WeatherSink(store WeatherStore) Sink[records.Weather] {
	return SinkFunc[records.Weather](store.InsertWeather)
}

// PredictionSink inserts predictions, ignoring ones already stored.
func PredictionSink(store PredictionStore) Sink[records.Prediction] {
	return SinkFunc[records.Prediction](store.InsertPredictions)
}
