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
	"maps"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"
)

// Message is a record to produce. Headers are flat string pairs.
type Message struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// ConsumedMessage is a Message plus where and when the broker stored it.
type ConsumedMessage struct {
	Message
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
}

// Header returns the named header, or "" when absent.
func (m *Message) Header(key string) string {
	return m.Headers[key]
}

// ToKafkaMessage builds the kafka-go form. Headers are emitted in key order
// so identical messages encode identically.
func (m *Message) ToKafkaMessage() kafka.Message {
	km := kafka.Message{Key: m.Key, Value: m.Value}
	for _, k := range slices.Sorted(maps.Keys(m.Headers)) {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(m.Headers[k])})
	}
	return km
}

// FromKafkaMessage flattens a fetched kafka-go message. A repeated header
// key keeps its last value.
func FromKafkaMessage(km kafka.Message) ConsumedMessage {
	cm := ConsumedMessage{
		Message:   Message{Key: km.Key, Value: km.Value, Headers: map[string]string{}},
		Topic:     km.Topic,
		Partition: km.Partition,
		Offset:    km.Offset,
		Timestamp: km.Time,
	}
	for _, h := range km.Headers {
		cm.Headers[h.Key] = string(h.Value)
	}
	return cm
}

// HighestOffsets reduces a batch to one commit marker per topic partition,
// carrying the highest offset seen there, in first-seen order.
func HighestOffsets(messages []ConsumedMessage) []kafka.Message {
	var out []kafka.Message
	index := map[string]map[int]int{}
	for _, msg := range messages {
		parts, ok := index[msg.Topic]
		if !ok {
			parts = map[int]int{}
			index[msg.Topic] = parts
		}
		i, seen := parts[msg.Partition]
		if !seen {
			parts[msg.Partition] = len(out)
			out = append(out, kafka.Message{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset})
			continue
		}
		out[i].Offset = max(out[i].Offset, msg.Offset)
	}
	return out
}
