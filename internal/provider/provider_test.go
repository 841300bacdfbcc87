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

package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/timechunk"
)

const historyBody = `[
  {
    "airline": {"iataCode": "aa", "icaoCode": "aal", "name": "American Airlines"},
    "arrival": {"iataCode": "lax", "scheduledTime": "2024-03-02t11:20:00.000", "actualTime": "2024-03-02t11:31:00.000"},
    "departure": {"iataCode": "jfk", "scheduledTime": "2024-03-02t08:00:00.000", "actualTime": "2024-03-02t08:12:00.000", "delay": "12"},
    "flight": {"iataNumber": "aa100"},
    "status": "landed"
  },
  {
    "airline": {"iataCode": "UA", "icaoCode": "UAL", "name": "United"},
    "arrival": {"iataCode": "SFO", "scheduledTime": "2024-03-02t12:00:00.000"},
    "departure": {"iataCode": "JFK", "scheduledTime": "2024-03-02t09:00:00.000", "delay": 7},
    "flight": {"iataNumber": "UA5"},
    "status": ""
  },
  {
    "airline": {"iataCode": "XX", "icaoCode": "XXX", "name": "Broken"},
    "arrival": {},
    "departure": {"iataCode": "JFK", "scheduledTime": "2024-03-02t10:00:00.000"},
    "flight": {"iataNumber": "XX1"}
  }
]`

func chunk(start, end string) timechunk.Chunk {
	s, _ := timechunk.ParseDate(start)
	e, _ := timechunk.ParseDate(end)
	return timechunk.Chunk{Start: s, End: e}
}

func TestAviationEdgeHistory(t *testing.T) {
	var got url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/flightsHistory", r.URL.Path)
		got = r.URL.Query()
		_, _ = fmt.Fprint(w, historyBody)
	}))
	defer srv.Close()

	api := NewAviationEdge("secret", srv.URL, srv.Client())
	flights, err := api.History(context.Background(), "JFK", chunk("2024-03-01", "2024-03-15"))
	require.NoError(t, err)

	assert.Equal(t, "secret", got.Get("key"))
	assert.Equal(t, "JFK", got.Get("code"))
	assert.Equal(t, "departure", got.Get("type"))
	assert.Equal(t, "2024-03-01", got.Get("date_from"))
	assert.Equal(t, "2024-03-15", got.Get("date_to"))

	require.Len(t, flights, 2, "leg without an arrival code is skipped")
	f := flights[0]
	assert.Equal(t, "AA100", f.FlightID)
	assert.Equal(t, "AMERICAN AIRLINES", f.AirlineName)
	assert.Equal(t, "AAL", f.AirlineIcaoCode)
	assert.Equal(t, "AA", f.AirlineIataCode)
	assert.Equal(t, "JFK", f.OriginAirportIata)
	assert.Equal(t, "LAX", f.DestinationAirportIata)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), f.ScheduledDepartureTime)
	require.NotNil(t, f.ActualDepartureTime)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 12, 0, 0, time.UTC), *f.ActualDepartureTime)
	require.NotNil(t, f.Delay)
	assert.Equal(t, int32(12), *f.Delay)
	require.NotNil(t, f.Status)
	assert.Equal(t, "landed", *f.Status)

	u := flights[1]
	assert.Nil(t, u.ActualDepartureTime)
	assert.Nil(t, u.ActualArrivalTime)
	assert.Nil(t, u.Status)
	require.NotNil(t, u.Delay)
	assert.Equal(t, int32(7), *u.Delay)
}

func TestAviationEdgeNoRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"error": "No Record Found", "success": false}`)
	}))
	defer srv.Close()

	flights, err := NewAviationEdge("k", srv.URL, srv.Client()).Timetable(context.Background(), "JFK")
	require.NoError(t, err)
	assert.Empty(t, flights)
}

func TestAviationEdgeErrorObject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"error": "Invalid API key"}`)
	}))
	defer srv.Close()

	_, err := NewAviationEdge("k", srv.URL, srv.Client()).Timetable(context.Background(), "JFK")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Invalid API key", apiErr.Message)
}

func TestAviationEdgeTimetable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/timetable", r.URL.Path)
		assert.Equal(t, "LAX", r.URL.Query().Get("iataCode"))
		assert.Equal(t, "departure", r.URL.Query().Get("type"))
		_, _ = fmt.Fprint(w, `[{"airline":{"name":"Delta","iataCode":"DL","icaoCode":"DAL"},
			"departure":{"iataCode":"LAX","scheduledTime":"2024-03-15T07:00:00.000"},
			"arrival":{"iataCode":"JFK","scheduledTime":"2024-03-15T15:30:00.000"},
			"flight":{"iataNumber":"DL1"},"status":"scheduled"}]`)
	}))
	defer srv.Close()

	src := TimetableSource{API: NewAviationEdge("k", srv.URL, srv.Client())}
	assert.False(t, src.Chunked())
	recs, err := src.Fetch(context.Background(), airports.Key{ICAO: "KLAX", IATA: "LAX"}, timechunk.Chunk{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, records.KindFlight, recs[0].Kind())
	assert.Equal(t, "JFK", recs[0].AirportCode())
}

func TestStatusErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := HistorySource{API: NewAviationEdge("k", srv.URL, srv.Client())}.
		Fetch(context.Background(), airports.Key{IATA: "JFK"}, chunk("2024-03-01", "2024-03-02"))
	require.Error(t, err)
	assert.True(t, IsRateLimited(err))

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, aviationEdge, se.Provider)
	assert.Equal(t, "slow down", se.Body)

	assert.False(t, IsRateLimited(&StatusError{StatusCode: 500}))
	assert.False(t, IsRateLimited(errors.New("nope")))
}

func TestTransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	srv.Close()

	_, err := NewAviationEdge("supersecret", srv.URL, nil).Timetable(context.Background(), "JFK")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "supersecret")
	assert.Contains(t, err.Error(), "REDACTED")
}

const timelineBody = `{
  "resolvedAddress": "40.6398,-73.7789",
  "days": [
    {"datetime": "2024-03-10", "hours": [
      {"datetime": "00:00:00", "temp": 4.2, "humidity": 80.1, "windspeed": 11.5, "winddir": 271.6, "precip": 0, "precipprob": 10, "pressure": 1012.3, "cloudcover": 55, "visibility": 16},
      {"datetime": "01:00:00", "temp": 3.9},
      {"datetime": "bogus"}
    ]},
    {"datetime": "2024-03-11", "hours": [
      {"datetime": "00:00:00"}
    ]}
  ]
}`

func TestVisualCrossingHourly(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/40.6398,-73.7789/2024-03-10/2024-03-11", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "metric", q.Get("unitGroup"))
		assert.Equal(t, "hours", q.Get("include"))
		assert.Equal(t, "vc", q.Get("key"))
		_, _ = fmt.Fprint(w, timelineBody)
	}))
	defer srv.Close()

	key := airports.Key{ICAO: "KJFK", IATA: "JFK", Latitude: 40.6398, Longitude: -73.7789}
	src := WeatherSource{API: NewVisualCrossing("vc", srv.URL, srv.Client())}
	recs, err := src.Fetch(context.Background(), key, chunk("2024-03-10", "2024-03-11"))
	require.NoError(t, err)
	require.Len(t, recs, 3)

	w := recs[0].(records.Weather)
	assert.Equal(t, "40.6398,-73.7789", w.Location)
	assert.Equal(t, "KJFK", w.IcaoCode)
	assert.Equal(t, "JFK", w.IataCode)
	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC), w.Datetime)
	require.NotNil(t, w.WindDirection)
	assert.Equal(t, int32(272), *w.WindDirection)
	require.NotNil(t, w.Temperature)
	assert.InDelta(t, 4.2, *w.Temperature, 1e-9)

	second := recs[1].(records.Weather)
	assert.Nil(t, second.Humidity)
	assert.Equal(t, time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC), second.Datetime)
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), recs[2].(records.Weather).Datetime)
}

func TestVisualCrossingMissingDays(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{"resolvedAddress": "x"}`)
	}))
	defer srv.Close()

	obs, err := NewVisualCrossing("vc", srv.URL, srv.Client()).Hourly(context.Background(), airports.Key{}, chunk("2024-03-10", "2024-03-11"))
	require.NoError(t, err)
	assert.Empty(t, obs)
}
