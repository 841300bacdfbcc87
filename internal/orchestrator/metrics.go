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

package orchestrator

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	cycleDuration   otelmetric.Float64Histogram
	cycleFailures   otelmetric.Int64Counter
	batchesComplete otelmetric.Int64Counter
	taskCounter     otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/airharvest/internal/orchestrator")

	var err error
	cycleDuration, err = meter.Float64Histogram(
		"airharvest.cycle.duration",
		otelmetric.WithDescription("Duration of one ingestion cycle over every airport"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cycle.duration histogram: %w", err))
	}

	cycleFailures, err = meter.Int64Counter(
		"airharvest.cycle.failures",
		otelmetric.WithDescription("Ingestion cycles that ended with an error"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cycle.failures counter: %w", err))
	}

	batchesComplete, err = meter.Int64Counter(
		"airharvest.cycle.batches",
		otelmetric.WithDescription("Airport batches completed and signalled"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create cycle.batches counter: %w", err))
	}

	taskCounter, err = meter.Int64Counter(
		"airharvest.supervisor.tasks",
		otelmetric.WithDescription("Supervised background tasks by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create supervisor.tasks counter: %w", err))
	}
}

func taskAttrs(name string, err error) otelmetric.MeasurementOption {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	return otelmetric.WithAttributes(attribute.String("task", name), attribute.String("outcome", outcome))
}
