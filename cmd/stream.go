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

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/airharvest/config"
	"github.com/cardinalhq/airharvest/flightdb"
	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/records"
	"github.com/cardinalhq/airharvest/internal/streaming"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stream",
		Short: "Persist the flight, weather and prediction topics into flightdb",
		RunE: func(_ *cobra.Command, _ []string) error {
			attrs := attribute.NewSet(attribute.String("action", "stream"))
			return runWithTelemetry("airharvest-stream", &attrs, func(ctx context.Context) error {
				return serve(ctx, serveOptions{stream: true})
			})
		},
	}

	rootCmd.AddCommand(cmd)
}

// startStreaming starts one consumer per registered topic on g.
func (a *app) startStreaming(ctx context.Context, g *errgroup.Group, store *flightdb.Store) error {
	mode, err := streaming.ParseMode(a.cfg.Streaming.Mode)
	if err != nil {
		return err
	}
	opts := streaming.Options{
		Mode:              mode,
		HeartbeatInterval: a.cfg.Streaming.HeartbeatInterval,
		RetryBackoff:      a.cfg.Streaming.RetryBackoff,
	}
	pollSize := mode.PollSize(a.cfg.Kafka.ConsumerBatchSize)

	for _, spec := range a.topics.All() {
		var run func(context.Context) error
		switch {
		case spec.Key == config.TopicHistoricalFlight:
			run, err = streamTopic(a.factory, spec, streaming.HistoricalFlightSink(store), opts, pollSize)
		case spec.Kind == records.KindFlight:
			run, err = streamTopic(a.factory, spec, streaming.FlightSink(store), opts, pollSize)
		case spec.Kind == records.KindWeather:
			run, err = streamTopic(a.factory, spec, streaming.WeatherSink(store), opts, pollSize)
		case spec.Kind == records.KindPrediction:
			run, err = streamTopic(a.factory, spec, streaming.PredictionSink(store), opts, pollSize)
		default:
			err = fmt.Errorf("topic %s carries unknown kind %q", spec.Key, spec.Kind)
		}
		if err != nil {
			return err
		}
		g.Go(func() error { return run(ctx) })
	}
	return nil
}

func streamTopic[T records.Record](factory *fly.Factory, spec config.TopicSpec, sink streaming.Sink[T], opts streaming.Options, pollSize int) (func(context.Context) error, error) {
	source, err := factory.CreateConsumer(spec.Name, spec.ConsumerGroup, pollSize)
	if err != nil {
		return nil, fmt.Errorf("create consumer for %s: %w", spec.Name, err)
	}
	consumer := streaming.NewConsumer(source, sink, opts)
	return func(ctx context.Context) error {
		defer func() {
			if err := source.Close(); err != nil {
				slog.Warn("Failed to close consumer", slog.String("topic", spec.Name), slog.Any("error", err))
			}
		}()
		slog.Info("Streaming topic",
			slog.String("topic", spec.Name),
			slog.String("group", spec.ConsumerGroup),
			slog.String("mode", string(opts.Mode)))
		return consumer.Run(ctx)
	}, nil
}
