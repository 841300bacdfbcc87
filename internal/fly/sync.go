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
	"log/slog"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
)

const defaultSyncTimeout = 5 * time.Minute

// TopicSyncer compares broker topics against a kafka-sync description and
// optionally repairs the difference.
type TopicSyncer struct {
	factory *Factory
}

func NewTopicSyncer(factory *Factory) *TopicSyncer {
	return &TopicSyncer{factory: factory}
}

// SyncTopics reports drift between the brokers and want. With fix set it
// also creates missing topics and raises partition counts and settings.
func (ts *TopicSyncer) SyncTopics(ctx context.Context, want *kafkasync.Config, fix bool) error {
	mech, tlsConfig, err := ts.factory.security()
	if err != nil {
		return err
	}
	syncer, err := kafkasync.NewSyncer(kafkasync.ConnectionConfig{
		BootstrapServers: ts.factory.GetConfig().Brokers,
		SASLMechanism:    mech,
		TLS:              tlsConfig,
	}, want)
	if err != nil {
		return fmt.Errorf("kafka-sync: %w", err)
	}

	mode, label := kafkasync.SyncModeInfo, "info"
	if fix {
		mode, label = kafkasync.SyncModeFix, "fix"
	}
	logger := slog.Default().With(slog.String("mode", label), slog.Int("topics", len(want.Topics)))
	logger.Info("Syncing kafka topics")
	if err := syncer.Sync(ctx, mode); err != nil {
		return fmt.Errorf("sync kafka topics: %w", err)
	}
	logger.Info("Kafka topics in sync")
	return nil
}

// LoadTopicsConfig reads a kafka-sync YAML file.
func LoadTopicsConfig(filename string) (*kafkasync.Config, error) {
	return kafkasync.LoadConfigFromFile(filename)
}

// BuildSyncConfig describes specs as a kafka-sync configuration.
func BuildSyncConfig(specs []TopicSpec, timeout time.Duration) *kafkasync.Config {
	if timeout <= 0 {
		timeout = defaultSyncTimeout
	}
	cfg := &kafkasync.Config{
		Defaults: kafkasync.Defaults{
			PartitionCount:    1,
			ReplicationFactor: 1,
			TopicConfig:       TopicSpec{}.withDefaults().topicConfig(),
		},
		OperationTimeout: timeout,
	}
	for _, spec := range specs {
		spec = spec.withDefaults()
		cfg.Topics = append(cfg.Topics, kafkasync.Topic{
			Name:              spec.Name,
			PartitionCount:    spec.Partitions,
			ReplicationFactor: spec.ReplicationFactor,
			Config:            spec.topicConfig(),
		})
	}
	return cfg
}
