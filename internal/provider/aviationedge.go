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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/timechunk"
)

const (
	// DefaultAviationEdgeURL is the public v2 API root.
	DefaultAviationEdgeURL = "https://aviation-edge.com/v2/public"

	aviationEdge = "aviation-edge"
	noRecords    = "No Record Found"
)

// AviationEdge is a client for the flight history and timetable endpoints.
type AviationEdge struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewAviationEdge(apiKey, baseURL string, client *http.Client) *AviationEdge {
	if baseURL == "" {
		baseURL = DefaultAviationEdgeURL
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &AviationEdge{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  slog.Default().With(slog.String("component", "provider"), slog.String("provider", aviationEdge)),
	}
}

// History returns departures from iata scheduled between from and to, inclusive.
func (a *AviationEdge) History(ctx context.Context, iata string, chunk timechunk.Chunk) ([]records.Flight, error) {
	target, err := a.endpoint("flightsHistory", url.Values{
		"code":      {iata},
		"type":      {"departure"},
		"date_from": {chunk.StartDate()},
		"date_to":   {chunk.EndDate()},
	})
	if err != nil {
		return nil, err
	}
	return a.fetchLegs(ctx, target)
}

// Timetable returns today's departures from iata.
func (a *AviationEdge) Timetable(ctx context.Context, iata string) ([]records.Flight, error) {
	target, err := a.endpoint("timetable", url.Values{
		"iataCode": {iata},
		"type":     {"departure"},
	})
	if err != nil {
		return nil, err
	}
	return a.fetchLegs(ctx, target)
}

func (a *AviationEdge) endpoint(path string, params url.Values) (*url.URL, error) {
	u, err := url.Parse(a.baseURL + "/" + path)
	if err != nil {
		return nil, fmt.Errorf("%s: bad base url: %w", aviationEdge, err)
	}
	params.Set("key", a.apiKey)
	u.RawQuery = params.Encode()
	return u, nil
}

func (a *AviationEdge) fetchLegs(ctx context.Context, target *url.URL) ([]records.Flight, error) {
	body, err := get(ctx, a.client, aviationEdge, target)
	if err != nil {
		return nil, err
	}
	legs, err := decodeLegs(body)
	if err != nil {
		return nil, err
	}

	flights := make([]records.Flight, 0, len(legs))
	for i := range legs {
		f, err := legs[i].toFlight()
		if err != nil {
			a.logger.Debug("Skipping malformed flight leg", slog.Any("error", err))
			continue
		}
		flights = append(flights, f)
	}
	return flights, nil
}

// decodeLegs accepts the usual array body. An object body is an error
// report, except "No Record Found" which means an empty result.
func decodeLegs(body []byte) ([]flightLeg, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '{' {
		var report struct {
			Error   string `json:"error"`
			Success *bool  `json:"success"`
		}
		if err := json.Unmarshal(trimmed, &report); err != nil {
			return nil, fmt.Errorf("%s: decode error body: %w", aviationEdge, err)
		}
		if strings.EqualFold(report.Error, noRecords) {
			return nil, nil
		}
		return nil, &APIError{Provider: aviationEdge, Message: report.Error}
	}

	var legs []flightLeg
	if err := json.Unmarshal(trimmed, &legs); err != nil {
		return nil, fmt.Errorf("%s: decode flights: %w", aviationEdge, err)
	}
	return legs, nil
}

type flightLeg struct {
	Airline struct {
		Name     string `json:"name"`
		IataCode string `json:"iataCode"`
		IcaoCode string `json:"icaoCode"`
	} `json:"airline"`
	Departure legEnd `json:"departure"`
	Arrival   legEnd `json:"arrival"`
	Flight    struct {
		IataNumber string `json:"iataNumber"`
	} `json:"flight"`
	Status string `json:"status"`
}

type legEnd struct {
	IataCode      string  `json:"iataCode"`
	ScheduledTime string  `json:"scheduledTime"`
	ActualTime    string  `json:"actualTime"`
	Delay         flexInt `json:"delay"`
}

func (l *flightLeg) toFlight() (records.Flight, error) {
	flightID := strings.ToUpper(strings.TrimSpace(l.Flight.IataNumber))
	origin := strings.ToUpper(strings.TrimSpace(l.Departure.IataCode))
	dest := strings.ToUpper(strings.TrimSpace(l.Arrival.IataCode))
	if flightID == "" || origin == "" || dest == "" {
		return records.Flight{}, fmt.Errorf("missing flight number or airport code")
	}

	scheduled, err := records.ParseUpstreamTime(l.Departure.ScheduledTime)
	if err != nil {
		return records.Flight{}, err
	}
	if scheduled == nil {
		return records.Flight{}, fmt.Errorf("flight %s has no scheduled departure", flightID)
	}

	f := records.Flight{
		FlightID:               flightID,
		AirlineName:            strings.ToUpper(strings.TrimSpace(l.Airline.Name)),
		AirlineIcaoCode:        strings.ToUpper(strings.TrimSpace(l.Airline.IcaoCode)),
		AirlineIataCode:        strings.ToUpper(strings.TrimSpace(l.Airline.IataCode)),
		ScheduledDepartureTime: *scheduled,
		OriginAirportIata:      origin,
		DestinationAirportIata: dest,
		Delay:                  l.Departure.Delay.ptr(),
	}
	// Optional times that fail to parse are left empty rather than dropping the flight.
	f.ActualDepartureTime, _ = records.ParseUpstreamTime(l.Departure.ActualTime)
	f.ScheduledArrivalTime, _ = records.ParseUpstreamTime(l.Arrival.ScheduledTime)
	f.ActualArrivalTime, _ = records.ParseUpstreamTime(l.Arrival.ActualTime)
	if status := strings.TrimSpace(l.Status); status != "" {
		f.Status = &status
	}
	return f, nil
}

// flexInt decodes a number that may arrive as a JSON number, a numeric
// string, an empty string or null.
type flexInt struct {
	value int32
	valid bool
}

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if s == "" || s == "null" {
		*f = flexInt{}
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		*f = flexInt{}
		return nil
	}
	*f = flexInt{value: int32(n), valid: true}
	return nil
}

func (f flexInt) ptr() *int32 {
	if !f.valid {
		return nil
	}
	v := f.value
	return &v
}

// HistorySource adapts History to the fetcher. It is chunked.
type HistorySource struct {
	API *AviationEdge
}

func (HistorySource) Kind() records.Kind { return records.KindFlight }
func (HistorySource) Name() string       { return "flight-history" }
func (HistorySource) Chunked() bool      { return true }

func (s HistorySource) Fetch(ctx context.Context, key airports.Key, chunk timechunk.Chunk) ([]records.Record, error) {
	flights, err := s.API.History(ctx, key.IATA, chunk)
	if err != nil {
		return nil, err
	}
	return asRecords(flights), nil
}

// TimetableSource adapts Timetable to the fetcher. It issues one request per airport.
type TimetableSource struct {
	API *AviationEdge
}

func (TimetableSource) Kind() records.Kind { return records.KindFlight }
func (TimetableSource) Name() string       { return "flight-timetable" }
func (TimetableSource) Chunked() bool      { return false }

func (s TimetableSource) Fetch(ctx context.Context, key airports.Key, _ timechunk.Chunk) ([]records.Record, error) {
	flights, err := s.API.Timetable(ctx, key.IATA)
	if err != nil {
		return nil, err
	}
	return asRecords(flights), nil
}

func asRecords[T records.Record](in []T) []records.Record {
	out := make([]records.Record, len(in))
	for i := range in {
		out[i] = in[i]
	}
	return out
}
