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
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var (
	requestCounter        otelmetric.Int64Counter
	requestErrorCounter   otelmetric.Int64Counter
	rateLimitedCounter    otelmetric.Int64Counter
	recordsFetchedCounter otelmetric.Int64Counter
	recordsDroppedCounter otelmetric.Int64Counter
	publishFailureCounter otelmetric.Int64Counter
	requestDuration       otelmetric.Float64Histogram

	tracer = otel.Tracer("github.com/cardinalhq/airharvest/internal/ingest")
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/airharvest/internal/ingest")

	var err error
	requestCounter, err = meter.Int64Counter(
		"airharvest.ingest.requests",
		otelmetric.WithDescription("Provider requests issued"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create requests counter: %w", err))
	}

	requestErrorCounter, err = meter.Int64Counter(
		"airharvest.ingest.request.errors",
		otelmetric.WithDescription("Provider requests that failed and aborted the airport"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request.errors counter: %w", err))
	}

	rateLimitedCounter, err = meter.Int64Counter(
		"airharvest.ingest.rate_limited",
		otelmetric.WithDescription("Provider requests rejected with HTTP 429"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create rate_limited counter: %w", err))
	}

	recordsFetchedCounter, err = meter.Int64Counter(
		"airharvest.ingest.records.fetched",
		otelmetric.WithDescription("Records returned by providers"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.fetched counter: %w", err))
	}

	recordsDroppedCounter, err = meter.Int64Counter(
		"airharvest.ingest.records.dropped",
		otelmetric.WithDescription("Records dropped because their airport is not known"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create records.dropped counter: %w", err))
	}

	publishFailureCounter, err = meter.Int64Counter(
		"airharvest.ingest.publish.failures",
		otelmetric.WithDescription("Batches lost because publishing failed"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create publish.failures counter: %w", err))
	}

	requestDuration, err = meter.Float64Histogram(
		"airharvest.ingest.request.duration",
		otelmetric.WithDescription("Provider request latency"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create request.duration histogram: %w", err))
	}
}

func sourceAttrs(source string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(attribute.String("source", source))
}
