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

package fly

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var meter = otel.Meter("github.com/cardinalhq/airharvest/internal/fly")

func mustCounter(name, description string) otelmetric.Int64Counter {
	c, err := meter.Int64Counter(name, otelmetric.WithDescription(description))
	if err != nil {
		panic(fmt.Errorf("create %s counter: %w", name, err))
	}
	return c
}

var (
	messagesSentCounter = mustCounter("airharvest.fly.producer.messages.sent",
		"Kafka messages written")
	messagesErrorCounter = mustCounter("airharvest.fly.producer.messages.errors",
		"Kafka messages whose write failed")
	bytesSentCounter = mustCounter("airharvest.fly.producer.bytes.sent",
		"Value bytes written to Kafka")
	messagesConsumedCounter = mustCounter("airharvest.fly.consumer.messages.consumed",
		"Kafka messages handed to a handler")
	messagesCommittedCounter = mustCounter("airharvest.fly.consumer.messages.committed",
		"Kafka messages committed after their handler succeeded")
	handlerFailureCounter = mustCounter("airharvest.fly.consumer.handler.failures",
		"Batches whose handler returned an error")
	readerResetCounter = mustCounter("airharvest.fly.consumer.reader.resets",
		"Readers rebuilt to replay uncommitted messages")

	consumerLagGauge = func() otelmetric.Int64Gauge {
		g, err := meter.Int64Gauge("airharvest.fly.consumer.lag",
			otelmetric.WithDescription("Consumer lag reported by the reader"))
		if err != nil {
			panic(fmt.Errorf("create consumer lag gauge: %w", err))
		}
		return g
	}()
)

// recordSentMetrics updates counters for a batch of messages.
func recordSentMetrics(ctx context.Context, topic string, msgs []Message, err error) {
	attrs := otelmetric.WithAttributes(attribute.String("topic", topic))
	if err != nil {
		messagesErrorCounter.Add(ctx, int64(len(msgs)), attrs)
		return
	}
	var size int64
	for i := range msgs {
		size += int64(len(msgs[i].Value))
	}
	messagesSentCounter.Add(ctx, int64(len(msgs)), attrs)
	bytesSentCounter.Add(ctx, size, attrs)
}

func consumerAttrs(topic, groupID string) otelmetric.MeasurementOption {
	return otelmetric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("consumer_group", groupID),
	)
}
