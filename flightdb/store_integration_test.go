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

//go:build integration

package flightdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/testhelpers"
)

func strPtr(s string) *string { return &s }

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestUpsertFlightsLatestStatusWins(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	base := records.Flight{
		FlightID:               "AA100",
		AirlineName:            "American Airlines",
		AirlineIataCode:        "AA",
		ScheduledDepartureTime: ts("2024-03-10T08:00:00Z"),
		OriginAirportIata:      "JFK",
		DestinationAirportIata: "LAX",
		Status:                 strPtr("scheduled"),
	}
	landed := base
	landed.Status = strPtr("landed")

	_, err := store.UpsertFlights(ctx, []records.Flight{base})
	require.NoError(t, err)
	_, err = store.UpsertFlights(ctx, []records.Flight{landed})
	require.NoError(t, err)

	var count int
	var status string
	require.NoError(t, store.Pool().QueryRow(ctx, "SELECT count(*), max(status) FROM flights").Scan(&count, &status))
	assert.Equal(t, 1, count)
	assert.Equal(t, "landed", status)

	// Same key twice inside one batch resolves in order.
	cancelled := base
	cancelled.Status = strPtr("cancelled")
	_, err = store.UpsertFlights(ctx, []records.Flight{landed, cancelled})
	require.NoError(t, err)
	require.NoError(t, store.Pool().QueryRow(ctx, "SELECT count(*), max(status) FROM flights").Scan(&count, &status))
	assert.Equal(t, 1, count)
	assert.Equal(t, "cancelled", status)
}

func TestInsertWeatherIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	temp := 12.5
	obs := []records.Weather{
		{Location: "New York", IcaoCode: "KJFK", IataCode: "JFK", Datetime: ts("2024-03-10T00:00:00Z"), Temperature: &temp},
		{Location: "New York", IcaoCode: "KJFK", IataCode: "JFK", Datetime: ts("2024-03-10T01:00:00Z")},
	}
	n, err := store.InsertWeather(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = store.InsertWeather(ctx, obs)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	latest, err := store.LatestWeatherObservation(ctx, "KJFK")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(ts("2024-03-10T01:00:00Z")))

	none, err := store.LatestWeatherObservation(ctx, "EGLL")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestInsertPredictionsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	p := []records.Prediction{{UniqueKey: "AA100|2024-03-10T08:00|JFK|LAX", Timestamp: ts("2024-03-10T06:00:00Z"), Stage: 1, Prediction: 15}}
	n, err := store.InsertPredictions(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.InsertPredictions(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestLatestHistoricalDeparture(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	_, err := store.UpsertHistoricalFlights(ctx, []records.Flight{
		{FlightID: "A1", ScheduledDepartureTime: ts("2024-03-01T08:00:00Z"), OriginAirportIata: "JFK", DestinationAirportIata: "LAX"},
		{FlightID: "A2", ScheduledDepartureTime: ts("2024-03-09T08:00:00Z"), OriginAirportIata: "JFK", DestinationAirportIata: "SFO"},
		{FlightID: "B1", ScheduledDepartureTime: ts("2024-03-12T08:00:00Z"), OriginAirportIata: "LAX", DestinationAirportIata: "JFK"},
	})
	require.NoError(t, err)

	latest, err := store.LatestHistoricalDeparture(ctx, "JFK")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(ts("2024-03-09T08:00:00Z")))
}

func TestTimetableRowsDoNotMoveHistoryWatermark(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	_, err := store.UpsertFlights(ctx, []records.Flight{
		{FlightID: "T1", ScheduledDepartureTime: ts("2024-03-15T08:00:00Z"), OriginAirportIata: "JFK", DestinationAirportIata: "LAX"},
	})
	require.NoError(t, err)

	latest, err := store.LatestHistoricalDeparture(ctx, "JFK")
	require.NoError(t, err)
	assert.Nil(t, latest)

	backfilled := records.Flight{FlightID: "H1", ScheduledDepartureTime: ts("2024-03-08T08:00:00Z"), OriginAirportIata: "JFK", DestinationAirportIata: "SFO"}
	_, err = store.UpsertHistoricalFlights(ctx, []records.Flight{backfilled})
	require.NoError(t, err)

	// A timetable refresh of a backfilled row keeps it historical.
	_, err = store.UpsertFlights(ctx, []records.Flight{backfilled})
	require.NoError(t, err)

	latest, err = store.LatestHistoricalDeparture(ctx, "JFK")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(ts("2024-03-08T08:00:00Z")))
}

func TestAirportsCursorsAndSignals(t *testing.T) {
	ctx := context.Background()
	store := testhelpers.NewTestFlightDBStore(t)

	_, err := store.UpsertAirport(ctx, flightdb.UpsertAirportParams{
		Name: "John F Kennedy Intl", IcaoCode: "kjfk", IataCode: "jfk", LatitudeDeg: 40.64, LongitudeDeg: -73.78,
	})
	require.NoError(t, err)
	airports, err := store.ListAirports(ctx)
	require.NoError(t, err)
	require.Len(t, airports, 1)
	assert.Equal(t, "KJFK", airports[0].IcaoCode)
	assert.Equal(t, "JFK", airports[0].IataCode)

	cur, err := store.GetIngestCursor(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int32(0), cur.Position)
	require.NoError(t, store.SaveIngestCursor(ctx, flightdb.SaveIngestCursorParams{Name: "ingest", Position: 100, CycleID: "c1"}))
	cur, err = store.GetIngestCursor(ctx, "ingest")
	require.NoError(t, err)
	assert.Equal(t, int32(100), cur.Position)
	assert.Equal(t, "c1", cur.CycleID)

	require.NoError(t, store.InsertBatchSignal(ctx, flightdb.InsertBatchSignalParams{
		ID: uuid.New(), CycleID: "c1", BatchStartedAt: time.Now(),
	}))
	pending, err := store.CountPendingBatchSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	n, err := store.ConsumeBatchSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	pending, err = store.CountPendingBatchSignals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}
