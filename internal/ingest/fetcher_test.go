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

package ingest

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/provider"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/timechunk"
	"github.com/cardinalhq/airharvest/internal/watermark"
)

type response struct {
	recs []records.Record
	err  error
}

type fakeSource struct {
	chunked   bool
	responses []response
	requested []timechunk.Chunk
}

func (s *fakeSource) Kind() records.Kind { return records.KindFlight }
func (s *fakeSource) Name() string       { return "fake" }
func (s *fakeSource) Chunked() bool      { return s.chunked }

func (s *fakeSource) Fetch(_ context.Context, _ airports.Key, c timechunk.Chunk) ([]records.Record, error) {
	s.requested = append(s.requested, c)
	if len(s.requested) > len(s.responses) {
		return nil, nil
	}
	r := s.responses[len(s.requested)-1]
	return r.recs, r.err
}

type fakeWatermarks struct {
	wm     time.Time
	found  bool
	err    error
	called int
}

func (w *fakeWatermarks) Resolve(context.Context, airports.Key, records.Kind) (time.Time, bool, error) {
	w.called++
	return w.wm, w.found, w.err
}

type fakePublisher struct {
	batches [][]records.Record
	err     error
}

func (p *fakePublisher) Publish(_ context.Context, topic string, batch []records.Record) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, append([]records.Record(nil), batch...))
	return nil
}

type sleepRecorder struct {
	waits []time.Duration
	err   error
}

func (s *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return s.err
}

var (
	testKey = airports.Key{ICAO: "KJFK", IATA: "JFK", Latitude: 40.64, Longitude: -73.78}
	testNow = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
)

func flight(id, dest string) records.Record {
	return records.Flight{FlightID: id, OriginAirportIata: "JFK", DestinationAirportIata: dest}
}

func newTestFetcher(src Source, wm Watermarks, pub Publisher, sleeps *sleepRecorder) *Fetcher {
	return NewFetcher(src, wm, pub, Options{
		Topic:             "historical-flight",
		RequestDelay:      1500 * time.Millisecond,
		RateLimitCooldown: 30 * time.Second,
		Now:               func() time.Time { return testNow },
		Sleep:             sleeps.sleep,
	})
}

func threeChunks() []timechunk.Chunk {
	return []timechunk.Chunk{
		chunk("2024-02-01", "2024-02-15"),
		chunk("2024-02-15", "2024-02-29"),
		chunk("2024-02-29", "2024-03-14"),
	}
}

func TestRun_UnknownAirportsDropped(t *testing.T) {
	src := &fakeSource{chunked: true, responses: []response{
		{recs: []records.Record{flight("AA1", "LAX"), flight("AA2", "XXX"), flight("AA3", "JFK")}},
	}}
	pub := &fakePublisher{}
	sleeps := &sleepRecorder{}
	f := newTestFetcher(src, &fakeWatermarks{}, pub, sleeps)

	res := f.Run(context.Background(), testKey, threeChunks()[:1], mapset.NewSet("JFK", "LAX"))
	require.NoError(t, res.Err)
	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 2)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Published)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, sleeps.waits)
}

func TestRun_PublishesPerRequest(t *testing.T) {
	src := &fakeSource{chunked: true, responses: []response{
		{recs: []records.Record{flight("AA1", "LAX")}},
		{recs: nil},
		{recs: []records.Record{flight("AA2", "LAX"), flight("AA3", "LAX")}},
	}}
	pub := &fakePublisher{}
	sleeps := &sleepRecorder{}
	f := newTestFetcher(src, &fakeWatermarks{}, pub, sleeps)

	res := f.Run(context.Background(), testKey, threeChunks(), mapset.NewSet("LAX"))
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Requests)
	require.Len(t, pub.batches, 2, "empty responses publish nothing")
	assert.Len(t, pub.batches[0], 1)
	assert.Len(t, pub.batches[1], 2)
	assert.Len(t, sleeps.waits, 3, "delay after every request")
}

func TestRun_FailureAbortsRemainingChunks(t *testing.T) {
	boom := errors.New("connection reset")
	src := &fakeSource{chunked: true, responses: []response{
		{recs: []records.Record{flight("AA1", "LAX")}},
		{err: boom},
		{recs: []records.Record{flight("AA2", "LAX")}},
	}}
	pub := &fakePublisher{}
	sleeps := &sleepRecorder{}
	f := newTestFetcher(src, &fakeWatermarks{}, pub, sleeps)

	res := f.Run(context.Background(), testKey, threeChunks(), mapset.NewSet("LAX"))
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, 2, res.Requests)
	assert.Len(t, src.requested, 2)
	assert.Len(t, pub.batches, 1, "records before the failure are still published")
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 1500 * time.Millisecond}, sleeps.waits)
}

func TestRun_RateLimitCoolsDown(t *testing.T) {
	src := &fakeSource{chunked: true, responses: []response{
		{err: &provider.StatusError{Provider: "aviation-edge", StatusCode: http.StatusTooManyRequests}},
	}}
	sleeps := &sleepRecorder{}
	f := newTestFetcher(src, &fakeWatermarks{}, &fakePublisher{}, sleeps)

	res := f.Run(context.Background(), testKey, threeChunks(), nil)
	assert.True(t, provider.IsRateLimited(res.Err))
	assert.Equal(t, 1, res.Requests)
	assert.Equal(t, []time.Duration{30 * time.Second}, sleeps.waits)
}

func TestRun_RespectsWatermark(t *testing.T) {
	src := &fakeSource{chunked: true}
	wm := &fakeWatermarks{wm: day("2024-02-20"), found: true}
	f := newTestFetcher(src, wm, &fakePublisher{}, &sleepRecorder{})

	res := f.Run(context.Background(), testKey, threeChunks(), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, []timechunk.Chunk{
		chunk("2024-02-20", "2024-02-29"),
		chunk("2024-02-29", "2024-03-14"),
	}, src.requested)
	assert.Equal(t, 1, wm.called)
}

func TestRun_AppliesLatencyCutoff(t *testing.T) {
	src := &fakeSource{chunked: true}
	f := NewFetcher(src, &fakeWatermarks{}, &fakePublisher{}, Options{
		Topic:   "historical-flight",
		Latency: FlightLatency,
		Now:     func() time.Time { return testNow },
		Sleep:   (&sleepRecorder{}).sleep,
	})

	f.Run(context.Background(), testKey, threeChunks(), nil)
	require.Len(t, src.requested, 3)
	assert.Equal(t, day("2024-03-11"), src.requested[2].End)
}

func TestRun_UnchunkedSourceRequestsToday(t *testing.T) {
	src := &fakeSource{chunked: false, responses: []response{
		{recs: []records.Record{flight("AA1", "LAX")}},
	}}
	wm := &fakeWatermarks{}
	pub := &fakePublisher{}
	f := newTestFetcher(src, wm, pub, &sleepRecorder{})

	res := f.Run(context.Background(), testKey, threeChunks(), mapset.NewSet("LAX"))
	require.NoError(t, res.Err)
	assert.Equal(t, []timechunk.Chunk{chunk("2024-03-15", "2024-03-15")}, src.requested)
	assert.Equal(t, 0, wm.called)
	assert.Len(t, pub.batches, 1)
}

func TestRun_PublishFailureDoesNotAbort(t *testing.T) {
	src := &fakeSource{chunked: true, responses: []response{
		{recs: []records.Record{flight("AA1", "LAX")}},
		{recs: []records.Record{flight("AA2", "LAX")}},
	}}
	pub := &fakePublisher{err: errors.New("broker down")}
	f := newTestFetcher(src, &fakeWatermarks{}, pub, &sleepRecorder{})

	res := f.Run(context.Background(), testKey, threeChunks()[:2], nil)
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Requests)
	assert.Equal(t, 2, res.PublishFailures)
	assert.Equal(t, 0, res.Published)
}

func TestRun_WatermarkErrorSkipsAirport(t *testing.T) {
	src := &fakeSource{chunked: true}
	boom := errors.New("db unavailable")
	f := newTestFetcher(src, &fakeWatermarks{err: boom}, &fakePublisher{}, &sleepRecorder{})

	res := f.Run(context.Background(), testKey, threeChunks(), nil)
	assert.ErrorIs(t, res.Err, boom)
	assert.Empty(t, src.requested)
}

func TestRun_NoWatermarkKindIsFullBackfill(t *testing.T) {
	src := &fakeSource{chunked: true}
	f := newTestFetcher(src, &fakeWatermarks{err: watermark.ErrNoWatermark}, &fakePublisher{}, &sleepRecorder{})

	res := f.Run(context.Background(), testKey, threeChunks(), nil)
	require.NoError(t, res.Err)
	assert.Len(t, src.requested, 3)
}

func TestRun_CancelledDuringDelay(t *testing.T) {
	src := &fakeSource{chunked: true}
	sleeps := &sleepRecorder{err: context.Canceled}
	f := newTestFetcher(src, &fakeWatermarks{}, &fakePublisher{}, sleeps)

	res := f.Run(context.Background(), testKey, threeChunks(), nil)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Len(t, src.requested, 1)
}

func TestSleepCtx(t *testing.T) {
	assert.NoError(t, sleepCtx(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, sleepCtx(ctx, time.Hour), context.Canceled)
}

// flightTable keeps departures the way flightdb does: one table, with
// backfilled rows marked historical.
type flightTable struct {
	rows []struct {
		flight     records.Flight
		historical bool
	}
}

func (t *flightTable) LatestHistoricalDeparture(_ context.Context, iata string) (*time.Time, error) {
	var latest *time.Time
	for _, r := range t.rows {
		if !r.historical || r.flight.OriginAirportIata != iata {
			continue
		}
		if latest == nil || r.flight.ScheduledDepartureTime.After(*latest) {
			ts := r.flight.ScheduledDepartureTime
			latest = &ts
		}
	}
	return latest, nil
}

func (t *flightTable) LatestWeatherObservation(context.Context, string) (*time.Time, error) {
	return nil, nil
}

// Publish stores the batch straight away, as the stream command would.
func (t *flightTable) Publish(_ context.Context, topic string, batch []records.Record) error {
	for _, rec := range batch {
		t.rows = append(t.rows, struct {
			flight     records.Flight
			historical bool
		}{rec.(records.Flight), topic == "historical-flight"})
	}
	return nil
}

func TestRun_TimetableDoesNotHideHistoryBackfill(t *testing.T) {
	table := &flightTable{}
	resolver := watermark.NewResolver(table, watermark.DefaultBackdateMargin)
	now := func() time.Time { return testNow }
	sleeps := &sleepRecorder{}

	departure := records.Flight{FlightID: "AA1", OriginAirportIata: "JFK", DestinationAirportIata: "LAX",
		ScheduledDepartureTime: testNow.Add(2 * time.Hour)}
	timetable := &fakeSource{responses: []response{{recs: []records.Record{departure}}}}
	res := NewFetcher(timetable, resolver, table, Options{Topic: "flight", Now: now, Sleep: sleeps.sleep}).
		Run(context.Background(), testKey, nil, nil)
	require.NoError(t, res.Err)
	require.Len(t, table.rows, 1)

	history := &fakeSource{chunked: true}
	res = NewFetcher(history, resolver, table, Options{
		Topic:   "historical-flight",
		Latency: FlightLatency,
		Now:     now,
		Sleep:   sleeps.sleep,
	}).Run(context.Background(), testKey, threeChunks(), nil)
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Requests)
	assert.Equal(t, chunk("2024-02-01", "2024-02-15"), history.requested[0])
}
