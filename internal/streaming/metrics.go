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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	decodeFailureCounter  otelmetric.Int64Counter
	persistFailureCounter otelmetric.Int64Counter
	recordsPersisted      otelmetric.Int64Counter
	rowsAffected          otelmetric.Int64Counter
	persistDuration       otelmetric.Float64Histogram

	tracer = otel.Tracer("github.com/cardinalhq/airharvest/internal/streaming")
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/airharvest/internal/streaming")

	var err error
	decodeFailureCounter, err = meter.Int64Counter(
		"airharvest.streaming.decode.failures",
		otelmetric.WithDescription("Messages skipped because they could not be decoded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create decode.failures counter: %w", err))
	}

	persistFailureCounter, err = meter.Int64Counter(
		"airharvest.streaming.persist.failures",
		otelmetric.WithDescription("Sink calls that failed and left their messages uncommitted"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create persist.failures counter: %w", err))
	}

	recordsPersisted, err = meter.Int64Counter(
		"airharvest.streaming.records.persisted",
		otelmetric.WithDescription("Records handed to a sink that returned success"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.persisted counter: %w", err))
	}

	rowsAffected, err = meter.Int64Counter(
		"airharvest.streaming.rows.affected",
		otelmetric.WithDescription("Rows inserted or updated by sinks"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rows.affected counter: %w", err))
	}

	persistDuration, err = meter.Float64Histogram(
		"airharvest.streaming.persist.duration",
		otelmetric.WithDescription("Time spent in one sink call"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create persist.duration histogram: %w", err))
	}
}

func topicAttrs(topic string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("topic", topic))
}
