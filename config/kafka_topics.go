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

package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/records"
)

// Topic keys for semantic access to topics
const (
	TopicWeather          = "weather"
	TopicFlight           = "flight"
	TopicHistoricalFlight = "historical-flight"
	TopicPrediction       = "prediction"
)

// TopicSpec defines metadata for a Kafka topic
type TopicSpec struct {
	Key           string       // Internal key for lookups
	Name          string       // Topic name on the broker
	ConsumerGroup string       // Consumer group that persists the topic
	Kind          records.Kind // Record kind carried on the topic
	Partitions    int
	Replication   int
	RetentionMs   int64
}

// TopicRegistry manages all Kafka topic definitions and provides type-safe access
type TopicRegistry struct {
	kafka *fly.Config
	specs map[string]TopicSpec
	order []string
}

// NewTopicRegistry builds the registry from the configured topic names.
// Consumer groups go through kafka.GetConsumerGroup so a prefix applies to all of them.
func NewTopicRegistry(topics TopicsConfig, kafka *fly.Config) *TopicRegistry {
	if kafka == nil {
		kafka = fly.DefaultConfig()
	}
	tr := &TopicRegistry{
		kafka: kafka,
		specs: make(map[string]TopicSpec),
	}

	tr.registerTopic(TopicWeather, topics.Weather, "weather-data-group", records.KindWeather, topics.RetentionMs)
	tr.registerTopic(TopicFlight, topics.Flight, "flight-data-group", records.KindFlight, topics.RetentionMs)
	// Historical departures land in the same table as the live feed, marked historical, with their own offsets.
	tr.registerTopic(TopicHistoricalFlight, topics.HistoricalFlight, "historical-flight-data-group", records.KindFlight, topics.RetentionMs)
	tr.registerTopic(TopicPrediction, topics.Prediction, "prediction-data-group", records.KindPrediction, topics.RetentionMs)

	return tr
}

// registerTopic adds a topic definition to the registry
func (tr *TopicRegistry) registerTopic(key, name, group string, kind records.Kind, retentionMs int64) {
	if name == "" {
		name = key
	}
	if retentionMs <= 0 {
		retentionMs = fly.DefaultRetentionMs
	}
	if _, exists := tr.specs[key]; !exists {
		tr.order = append(tr.order, key)
	}
	tr.specs[key] = TopicSpec{
		Key:           key,
		Name:          name,
		ConsumerGroup: tr.kafka.GetConsumerGroup(group),
		Kind:          kind,
		Partitions:    1,
		Replication:   1,
		RetentionMs:   retentionMs,
	}
}

// Spec returns the spec for key.
func (tr *TopicRegistry) Spec(key string) (TopicSpec, bool) {
	spec, ok := tr.specs[key]
	return spec, ok
}

// GetTopic returns the full topic name for the given key
func (tr *TopicRegistry) GetTopic(key string) string {
	spec, exists := tr.specs[key]
	if !exists {
		panic(fmt.Sprintf("unknown topic key: %s", key))
	}
	return spec.Name
}

// GetConsumerGroup returns the consumer group name for the given topic key
func (tr *TopicRegistry) GetConsumerGroup(key string) string {
	spec, exists := tr.specs[key]
	if !exists {
		panic(fmt.Sprintf("unknown topic key: %s", key))
	}
	return spec.ConsumerGroup
}

// All returns every registered spec in registration order.
func (tr *TopicRegistry) All() []TopicSpec {
	out := make([]TopicSpec, 0, len(tr.order))
	for _, key := range tr.order {
		out = append(out, tr.specs[key])
	}
	return out
}

// GetAllTopics returns the distinct topic names, sorted.
func (tr *TopicRegistry) GetAllTopics() []string {
	var topics []string
	for _, spec := range tr.specs {
		if !slices.Contains(topics, spec.Name) {
			topics = append(topics, spec.Name)
		}
	}
	sort.Strings(topics)
	return topics
}

// Specs returns the admin-level specs used to create and reconcile topics.
// Every topic accepts messages up to the producer's limit.
func (tr *TopicRegistry) Specs() []fly.TopicSpec {
	specs := make([]fly.TopicSpec, 0, len(tr.order))
	for _, spec := range tr.All() {
		specs = append(specs, fly.TopicSpec{
			Name:              spec.Name,
			Partitions:        spec.Partitions,
			ReplicationFactor: spec.Replication,
			RetentionMs:       spec.RetentionMs,
			MaxMessageBytes:   tr.kafka.ProducerMaxMessageBytes,
		})
	}
	return specs
}

// KafkaTopicsConfig is the optional YAML override file. Topics are keyed by
// registry key; unset fields keep the registry values.
type KafkaTopicsConfig struct {
	Defaults TopicOverride            `yaml:"defaults"`
	Topics   map[string]TopicOverride `yaml:"topics"`
}

type TopicOverride struct {
	Name              string `yaml:"name,omitempty"`
	PartitionCount    *int   `yaml:"partitionCount,omitempty"`
	ReplicationFactor *int   `yaml:"replicationFactor,omitempty"`
	RetentionMs       *int64 `yaml:"retentionMs,omitempty"`
}

// LoadKafkaTopicsConfig reads an override file.
func LoadKafkaTopicsConfig(path string) (KafkaTopicsConfig, error) {
	var cfg KafkaTopicsConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read topics file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse topics file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyOverrides merges an override file into the registry.
func (tr *TopicRegistry) ApplyOverrides(cfg KafkaTopicsConfig) error {
	var errs []error
	for key := range cfg.Topics {
		if _, ok := tr.specs[key]; !ok {
			errs = append(errs, fmt.Errorf("topics file: unknown topic key %q", key))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	defaults := cfg.Defaults
	defaults.Name = ""
	for _, key := range tr.order {
		spec := defaults.apply(tr.specs[key])
		if o, ok := cfg.Topics[key]; ok {
			spec = o.apply(spec)
		}
		if spec.Partitions < 1 || spec.Replication < 1 {
			errs = append(errs, fmt.Errorf("topics file: %s needs at least one partition and replica", key))
		}
		tr.specs[key] = spec
	}
	return errors.Join(errs...)
}

func (o TopicOverride) apply(spec TopicSpec) TopicSpec {
	if o.Name != "" {
		spec.Name = o.Name
	}
	if o.PartitionCount != nil {
		spec.Partitions = *o.PartitionCount
	}
	if o.ReplicationFactor != nil {
		spec.Replication = *o.ReplicationFactor
	}
	if o.RetentionMs != nil && *o.RetentionMs > 0 {
		spec.RetentionMs = *o.RetentionMs
	}
	return spec
}
