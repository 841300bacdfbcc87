// Copyright (C) 2025 CardinalHQ, Inc
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

// Package records holds the domain records that travel from the providers,
// through Kafka, into flightdb.
package records

import (
	"fmt"
	"strings"
	"time"
)

// Kind names an entity type. Each kind has its own topic and table.
type Kind string

const (
	KindFlight     Kind = "flight"
	KindWeather    Kind = "weather"
	KindPrediction Kind = "prediction"
)

// Record is anything a Fetcher can batch and publish.
type Record interface {
	Kind() Kind
	// AirportCode is the IATA code checked against the known-airport set.
	AirportCode() string
}

// Flight is one scheduled flight leg. Its identity is
// (FlightID, ScheduledDepartureTime, OriginAirportIata, DestinationAirportIata).
type Flight struct {
	FlightID               string     `json:"flightID"`
	AirlineName            string     `json:"airlineName"`
	AirlineIcaoCode        string     `json:"airlineIcaoCode"`
	AirlineIataCode        string     `json:"airlineIataCode"`
	ScheduledDepartureTime time.Time  `json:"scheduledDepartureTime"`
	ActualDepartureTime    *time.Time `json:"actualDepartureTime"`
	ScheduledArrivalTime   *time.Time `json:"scheduledArrivalTime"`
	ActualArrivalTime      *time.Time `json:"actualArrivalTime"`
	OriginAirportIata      string     `json:"originAirportIata"`
	DestinationAirportIata string     `json:"destinationAirportIata"`
	Delay                  *int32     `json:"delay"`
	Status                 *string    `json:"status"`
}

func (Flight) Kind() Kind { return KindFlight }

func (f Flight) AirportCode() string { return f.DestinationAirportIata }

// Weather is one hourly observation at an airport. Its identity is
// (Location, IcaoCode, IataCode, Datetime).
type Weather struct {
	Location                 string    `json:"location"`
	IcaoCode                 string    `json:"icao_code"`
	IataCode                 string    `json:"iata_code"`
	Datetime                 time.Time `json:"datetime"`
	Visibility               *float64  `json:"visibility"`
	Precipitation            *float64  `json:"precipitation"`
	PrecipitationProbability *float64  `json:"precipitation_probability"`
	WindSpeed                *float64  `json:"wind_speed"`
	WindDirection            *int32    `json:"wind_direction"`
	Temperature              *float64  `json:"temperature"`
	Humidity                 *float64  `json:"humidity"`
	Pressure                 *float64  `json:"pressure"`
	CloudCover               *float64  `json:"cloud_cover"`
}

func (Weather) Kind() Kind { return KindWeather }

func (w Weather) AirportCode() string { return w.IataCode }

// Prediction is a model output for a flight. Its identity is (UniqueKey, Timestamp).
type Prediction struct {
	UniqueKey  string    `json:"unique_key"`
	Timestamp  time.Time `json:"timestamp"`
	Stage      int32     `json:"stage"`
	Prediction int32     `json:"prediction"`
}

func (Prediction) Kind() Kind { return KindPrediction }

// AirportCode is empty: predictions are produced downstream and never filtered.
func (Prediction) AirportCode() string { return "" }

const upstreamLayout = "2006-01-02t15:04:05.000"

// ParseUpstreamTime normalises the provider's lower-case-t timestamps
// (2025-10-17t11:20:00.000) into UTC. Fractional seconds are optional and an
// upper-case T is accepted too. Empty input yields (nil, nil).
func ParseUpstreamTime(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	value = strings.Replace(value, "T", "t", 1)
	for _, layout := range []string{upstreamLayout, "2006-01-02t15:04:05", "2006-01-02t15:04"} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognised upstream timestamp %q", value)
}
