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
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/timechunk"
)

const (
	// DefaultVisualCrossingURL is the timeline API root.
	DefaultVisualCrossingURL = "https://weather.visualcrossing.com/VisualCrossingWebServices/rest/services/timeline"

	visualCrossing = "visual-crossing"
	hourLayout     = "2006-01-02 15:04:05"
)

// VisualCrossing is a client for the hourly weather timeline.
type VisualCrossing struct {
	apiKey  string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewVisualCrossing(apiKey, baseURL string, client *http.Client) *VisualCrossing {
	if baseURL == "" {
		baseURL = DefaultVisualCrossingURL
	}
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &VisualCrossing{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  slog.Default().With(slog.String("component", "provider"), slog.String("provider", visualCrossing)),
	}
}

type timelineResponse struct {
	ResolvedAddress string        `json:"resolvedAddress"`
	Days            []timelineDay `json:"days"`
}

type timelineDay struct {
	Datetime string         `json:"datetime"`
	Hours    []timelineHour `json:"hours"`
}

type timelineHour struct {
	Datetime   string   `json:"datetime"`
	Visibility *float64 `json:"visibility"`
	Precip     *float64 `json:"precip"`
	PrecipProb *float64 `json:"precipprob"`
	WindSpeed  *float64 `json:"windspeed"`
	WindDir    *float64 `json:"winddir"`
	Temp       *float64 `json:"temp"`
	Humidity   *float64 `json:"humidity"`
	Pressure   *float64 `json:"pressure"`
	CloudCover *float64 `json:"cloudcover"`
}

// Hourly returns one observation per hour at key's coordinates for every
// day of chunk.
func (v *VisualCrossing) Hourly(ctx context.Context, key airports.Key, chunk timechunk.Chunk) ([]records.Weather, error) {
	u, err := url.Parse(fmt.Sprintf("%s/%s/%s/%s", v.baseURL, key.Coordinates(), chunk.StartDate(), chunk.EndDate()))
	if err != nil {
		return nil, fmt.Errorf("%s: bad url: %w", visualCrossing, err)
	}
	u.RawQuery = url.Values{
		"unitGroup": {"metric"},
		"include":   {"hours"},
		"key":       {v.apiKey},
	}.Encode()

	body, err := get(ctx, v.client, visualCrossing, u)
	if err != nil {
		return nil, err
	}

	var resp timelineResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%s: decode timeline: %w", visualCrossing, err)
	}

	var out []records.Weather
	for _, day := range resp.Days {
		for _, hour := range day.Hours {
			at, err := time.ParseInLocation(hourLayout, day.Datetime+" "+hour.Datetime, time.UTC)
			if err != nil {
				v.logger.Debug("Skipping hour with bad datetime",
					slog.String("day", day.Datetime), slog.String("hour", hour.Datetime))
				continue
			}
			out = append(out, records.Weather{
				Location:                 resp.ResolvedAddress,
				IcaoCode:                 key.ICAO,
				IataCode:                 key.IATA,
				Datetime:                 at,
				Visibility:               hour.Visibility,
				Precipitation:            hour.Precip,
				PrecipitationProbability: hour.PrecipProb,
				WindSpeed:                hour.WindSpeed,
				WindDirection:            degrees(hour.WindDir),
				Temperature:              hour.Temp,
				Humidity:                 hour.Humidity,
				Pressure:                 hour.Pressure,
				CloudCover:               hour.CloudCover,
			})
		}
	}
	return out, nil
}

func degrees(v *float64) *int32 {
	if v == nil {
		return nil
	}
	d := int32(math.Round(*v))
	return &d
}

// WeatherSource adapts Hourly to the fetcher.
type WeatherSource struct {
	API *VisualCrossing
}

func (WeatherSource) Kind() records.Kind { return records.KindWeather }
func (WeatherSource) Name() string       { return "weather" }
func (WeatherSource) Chunked() bool      { return true }

func (s WeatherSource) Fetch(ctx context.Context, key airports.Key, chunk timechunk.Chunk) ([]records.Record, error) {
	obs, err := s.API.Hourly(ctx, key, chunk)
	if err != nil {
		return nil, err
	}
	return asRecords(obs), nil
}
