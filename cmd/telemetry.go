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
	"os"
	"time"

	"github.com/cardinalhq/oteltools/pkg/telemetry"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/host"
	iruntime "go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/airharvest/internal/idgen"
)

const telemetryShutdownTimeout = 10 * time.Second

var meter = otel.Meter("github.com/cardinalhq/airharvest")

func debugEnabled() bool {
	return os.Getenv("DEBUG") != "" || os.Getenv("AIRHARVEST_DEBUG") != ""
}

func otlpEnabled() bool {
	return os.Getenv("OTEL_SERVICE_NAME") != "" && os.Getenv("ENABLE_OTLP_TELEMETRY") == "true"
}

// installLogger makes a text logger on stdout the default, fanned out to the
// OTel log bridge when exporting.
func installLogger(servicename string, instanceID int64, export bool) {
	level := slog.LevelInfo
	if debugEnabled() {
		level = slog.LevelDebug
	}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if export {
		handler = slogmulti.Fanout(handler, otelslog.NewHandler(servicename))
	}
	slog.SetDefault(slog.New(handler).With(
		slog.String("service", servicename),
		slog.Int64("instanceID", instanceID),
	))
}

// startOTel brings up the SDK plus runtime and host instrumentation and
// returns its shutdown.
func startOTel(ctx context.Context) (func(context.Context) error, error) {
	shutdown, err := telemetry.SetupOTelSDK(ctx)
	if err != nil {
		return nil, fmt.Errorf("setup OpenTelemetry SDK: %w", err)
	}
	if err := iruntime.Start(iruntime.WithMinimumReadMemStatsInterval(10 * time.Second)); err != nil {
		slog.Warn("Runtime metrics unavailable", slog.Any("error", err))
	}
	if err := host.Start(); err != nil {
		slog.Warn("Host metrics unavailable", slog.Any("error", err))
	}
	return shutdown, nil
}

// recordExists sets airharvest.exists to 1 so the service shows up in
// dashboards even when idle.
func recordExists(attrs attribute.Set) {
	gauge, err := meter.Int64Gauge("airharvest.exists",
		metric.WithDescription("1 while the service is running"))
	if err != nil {
		slog.Warn("Cannot create exists gauge", slog.Any("error", err))
		return
	}
	gauge.Record(context.Background(), 1, metric.WithAttributeSet(attrs))
}

// runWithTelemetry is the common RunE body: signals, logging and OTel are set
// up for servicename, run is called, and everything is torn down afterwards.
func runWithTelemetry(servicename string, extra *attribute.Set, run func(ctx context.Context) error) error {
	instanceID := idgen.InstanceID()
	ctx, stop := handleSignals(context.Background())
	defer stop()

	export := otlpEnabled()
	installLogger(servicename, instanceID, export)

	if export {
		shutdown, err := startOTel(ctx)
		if err != nil {
			return err
		}
		slog.Info("OpenTelemetry exporting enabled")
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
			defer cancel()
			if err := shutdown(sctx); err != nil {
				slog.Error("Error shutting down telemetry", slog.Any("error", err))
			}
		}()
	}

	attrs := []attribute.KeyValue{
		attribute.Int64("instanceID", instanceID),
		attribute.String("service", servicename),
	}
	if extra != nil {
		attrs = append(attrs, extra.ToSlice()...)
	}
	recordExists(attribute.NewSet(attrs...))

	return run(ctx)
}
