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
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/records"
)

// fakeSource replays polls to the handler, stopping at the first failure
// the way the fly consumer does.
type fakeSource struct {
	polls      [][]fly.ConsumedMessage
	consumes   int
	lagReports atomic.Int64
	errs       []error
}

func (s *fakeSource) Consume(ctx context.Context, handler fly.MessageHandler) error {
	s.consumes++
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return err
	}
	for len(s.polls) > 0 {
		if err := handler(ctx, s.polls[0]); err != nil {
			return errors.Join(fly.ErrHandlerFailed, err)
		}
		s.polls = s.polls[1:]
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *fakeSource) ReportLag(context.Context) { s.lagReports.Add(1) }
func (s *fakeSource) Topic() string             { return "weather" }
func (s *fakeSource) GroupID() string           { return "weather-data-group" }
func (s *fakeSource) Close() error              { return nil }

type fakeSink[T any] struct {
	mu    sync.Mutex
	calls [][]T
	fail  int
	delay time.Duration
}

func (s *fakeSink[T]) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *fakeSink[T]) Persist(ctx context.Context, batch []T) (int64, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail > 0 {
		s.fail--
		return 0, errors.New("deadlock detected")
	}
	s.calls = append(s.calls, batch)
	return int64(len(batch)), nil
}

func msg(offset int64, value string) fly.ConsumedMessage {
	return fly.ConsumedMessage{
		Message:   fly.Message{Value: []byte(value), Headers: map[string]string{"kind": "weather"}},
		Topic:     "weather",
		Partition: 0,
		Offset:    offset,
	}
}

const (
	obsA = `{"location":"JFK","icao_code":"KJFK","iata_code":"JFK","datetime":"2024-03-15T10:00:00Z"}`
	obsB = `{"location":"JFK","icao_code":"KJFK","iata_code":"JFK","datetime":"2024-03-15T11:00:00Z"}`
	obsC = `{"location":"LAX","icao_code":"KLAX","iata_code":"LAX","datetime":"2024-03-15T11:00:00Z"}`
)

func TestHandle_BatchModeConcatenatesAndSkipsBadMessages(t *testing.T) {
	sink := &fakeSink[records.Weather]{}
	c := NewConsumer[records.Weather](&fakeSource{}, sink, Options{Mode: ModeBatch})

	err := c.Handle(context.Background(), []fly.ConsumedMessage{
		msg(0, "["+obsA+","+obsB+"]"),
		msg(1, "not json"),
		msg(2, obsC),
	})
	require.NoError(t, err)
	require.Len(t, sink.calls, 1)
	assert.Len(t, sink.calls[0], 3)
	assert.Equal(t, "LAX", sink.calls[0][2].IataCode)
}

func TestHandle_MessageModePersistsEach(t *testing.T) {
	sink := &fakeSink[records.Weather]{}
	c := NewConsumer[records.Weather](&fakeSource{}, sink, Options{Mode: ModeMessage})

	err := c.Handle(context.Background(), []fly.ConsumedMessage{
		msg(0, "["+obsA+","+obsB+"]"),
		msg(1, "{"),
		msg(2, obsC),
	})
	require.NoError(t, err)
	require.Len(t, sink.calls, 2)
	assert.Len(t, sink.calls[0], 2)
	assert.Len(t, sink.calls[1], 1)
}

func TestHandle_WrongKindSkipped(t *testing.T) {
	sink := &fakeSink[records.Weather]{}
	c := NewConsumer[records.Weather](&fakeSource{}, sink, Options{})

	m := msg(0, obsA)
	m.Headers["kind"] = "flight"
	require.NoError(t, c.Handle(context.Background(), []fly.ConsumedMessage{m}))
	assert.Empty(t, sink.calls)
}

func TestHandle_PersistFailureReturnsError(t *testing.T) {
	sink := &fakeSink[records.Weather]{fail: 1}
	c := NewConsumer[records.Weather](&fakeSource{}, sink, Options{})

	err := c.Handle(context.Background(), []fly.ConsumedMessage{msg(0, obsA)})
	assert.ErrorContains(t, err, "deadlock detected")
	assert.Empty(t, sink.calls)
}

func TestHandle_ReportsLagDuringSlowPersist(t *testing.T) {
	source := &fakeSource{}
	sink := &fakeSink[records.Weather]{delay: 60 * time.Millisecond}
	c := NewConsumer[records.Weather](source, sink, Options{HeartbeatInterval: 10 * time.Millisecond})

	require.NoError(t, c.Handle(context.Background(), []fly.ConsumedMessage{msg(0, obsA)}))
	assert.GreaterOrEqual(t, source.lagReports.Load(), int64(2))
}

func TestRun_RedeliversAfterPersistFailure(t *testing.T) {
	poll := []fly.ConsumedMessage{msg(0, obsA), msg(1, obsB)}
	source := &fakeSource{polls: [][]fly.ConsumedMessage{poll}}
	sink := &fakeSink[records.Weather]{fail: 1}
	c := NewConsumer[records.Weather](source, sink, Options{RetryBackoff: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return sink.callCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Len(t, sink.calls[0], 2, "the failed poll is persisted whole on redelivery")
	assert.Equal(t, 2, source.consumes)
}

func TestRun_RestartsAfterConsumeError(t *testing.T) {
	source := &fakeSource{errs: []error{errors.New("coordinator not available")}}
	c := NewConsumer[records.Weather](source, &fakeSink[records.Weather]{}, Options{RetryBackoff: time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))
	assert.Equal(t, 2, source.consumes)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeBatch, m)

	m, err = ParseMode(" Message ")
	require.NoError(t, err)
	assert.Equal(t, ModeMessage, m)
	assert.Equal(t, 1, m.PollSize(100))
	assert.Equal(t, 100, ModeBatch.PollSize(100))

	_, err = ParseMode("stream")
	assert.Error(t, err)
}

type countingStore struct{ flights, historical, weather, predictions int }

func (s *countingStore) UpsertFlights(_ context.Context, f []records.Flight) (int64, error) {
	s.flights += len(f)
	return int64(len(f)), nil
}

func (s *countingStore) UpsertHistoricalFlights(_ context.Context, f []records.Flight) (int64, error) {
	s.historical += len(f)
	return int64(len(f)), nil
}

func (s *countingStore) InsertWeather(_ context.Context, w []records.Weather) (int64, error) {
	s.weather += len(w)
	return int64(len(w)), nil
}

func (s *countingStore) InsertPredictions(_ context.Context, p []records.Prediction) (int64, error) {
	s.predictions += len(p)
	return int64(len(p)), nil
}

func TestSinks(t *testing.T) {
	store := &countingStore{}
	ctx := context.Background()

	_, err := FlightSink(store).Persist(ctx, []records.Flight{{FlightID: "AA1"}})
	require.NoError(t, err)
	_, err = HistoricalFlightSink(store).Persist(ctx, []records.Flight{{FlightID: "AA2"}, {FlightID: "AA3"}})
	require.NoError(t, err)
	_, err = WeatherSink(store).Persist(ctx, []records.Weather{{}, {}})
	require.NoError(t, err)
	_, err = PredictionSink(store).Persist(ctx, []records.Prediction{{}, {}, {}})
	require.NoError(t, err)

	assert.Equal(t, countingStore{flights: 1, historical: 2, weather: 2, predictions: 3}, *store)
}
