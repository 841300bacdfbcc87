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
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
)

// DefaultRetentionMs keeps topic data for seven days.
const DefaultRetentionMs int64 = 7 * 24 * 60 * 60 * 1000

// DefaultMaxMessageBytes is the largest message producers send and topics accept.
const DefaultMaxMessageBytes = 20_000_000

// TopicSpec describes a topic the process expects to exist.
type TopicSpec struct {
	Name              string
	Partitions        int
	ReplicationFactor int
	RetentionMs       int64
	MaxMessageBytes   int
}

func (s TopicSpec) withDefaults() TopicSpec {
	if s.Partitions <= 0 {
		s.Partitions = 1
	}
	if s.ReplicationFactor <= 0 {
		s.ReplicationFactor = 1
	}
	if s.RetentionMs <= 0 {
		s.RetentionMs = DefaultRetentionMs
	}
	if s.MaxMessageBytes <= 0 {
		s.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return s
}

// topicConfig is the broker-side configuration every topic is created with.
func (s TopicSpec) topicConfig() map[string]string {
	return map[string]string{
		"retention.ms":      strconv.FormatInt(s.RetentionMs, 10),
		"max.message.bytes": strconv.Itoa(s.MaxMessageBytes),
	}
}

type TopicInfo struct {
	Name       string
	Partitions []PartitionInfo
}

type PartitionInfo struct {
	ID            int
	HighWaterMark int64
}

// ConsumerGroupInfo is one partition's committed offset and lag for a group.
type ConsumerGroupInfo struct {
	GroupID         string
	Topic           string
	Partition       int
	CommittedOffset int64
	HighWaterMark   int64
	Lag             int64
}

// adminAPI is the subset of *kafka.Client the admin client calls.
type adminAPI interface {
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
	ListOffsets(ctx context.Context, req *kafka.ListOffsetsRequest) (*kafka.ListOffsetsResponse, error)
	OffsetFetch(ctx context.Context, req *kafka.OffsetFetchRequest) (*kafka.OffsetFetchResponse, error)
}

// AdminClient provides Kafka administrative operations
type AdminClient struct {
	client adminAPI
	logger *slog.Logger
}

// NewAdminClient creates a new Kafka admin client
func NewAdminClient(config *Config) (*AdminClient, error) {
	client, err := NewFactory(config).CreateKafkaClient()
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}
	return newAdminClient(client), nil
}

func newAdminClient(client adminAPI) *AdminClient {
	return &AdminClient{
		client: client,
		logger: slog.Default().With(slog.String("component", "kafka-admin")),
	}
}

func (a *AdminClient) existingTopics(ctx context.Context) (map[string]kafka.Topic, error) {
	resp, err := a.client.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, fmt.Errorf("kafka metadata: %w", err)
	}
	topics := make(map[string]kafka.Topic, len(resp.Topics))
	for _, t := range resp.Topics {
		if t.Error == nil && !t.Internal {
			topics[t.Name] = t
		}
	}
	return topics, nil
}

// missingTopics returns the specs whose topic is absent, sorted by name.
func missingTopics(existing map[string]kafka.Topic, specs []TopicSpec) []TopicSpec {
	seen := make(map[string]bool, len(specs))
	var missing []TopicSpec
	for _, spec := range specs {
		if spec.Name == "" || seen[spec.Name] {
			continue
		}
		seen[spec.Name] = true
		if _, ok := existing[spec.Name]; !ok {
			missing = append(missing, spec.withDefaults())
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Name < missing[j].Name })
	return missing
}

// EnsureTopics creates every topic in specs that does not exist yet and
// returns the names it created. Topics that already exist are left alone,
// so calling it again is a no-op.
func (a *AdminClient) EnsureTopics(ctx context.Context, specs []TopicSpec) ([]string, error) {
	existing, err := a.existingTopics(ctx)
	if err != nil {
		return nil, err
	}

	missing := missingTopics(existing, specs)
	if len(missing) == 0 {
		a.logger.Info("All topics already exist", slog.Int("topicCount", len(specs)))
		return nil, nil
	}

	req := &kafka.CreateTopicsRequest{
		Topics: make([]kafka.TopicConfig, 0, len(missing)),
	}
	for _, spec := range missing {
		cfg := spec.topicConfig()
		entries := make([]kafka.ConfigEntry, 0, len(cfg))
		for _, name := range slices.Sorted(maps.Keys(cfg)) {
			entries = append(entries, kafka.ConfigEntry{ConfigName: name, ConfigValue: cfg[name]})
		}
		req.Topics = append(req.Topics, kafka.TopicConfig{
			Topic:             spec.Name,
			NumPartitions:     spec.Partitions,
			ReplicationFactor: spec.ReplicationFactor,
			ConfigEntries:     entries,
		})
	}

	resp, err := a.client.CreateTopics(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create topics: %w", err)
	}

	var created []string
	var errs []error
	for _, spec := range missing {
		topicErr := resp.Errors[spec.Name]
		switch {
		case topicErr == nil:
			created = append(created, spec.Name)
			a.logger.Info("Created topic",
				slog.String("topic", spec.Name),
				slog.Int("partitions", spec.Partitions),
				slog.Int64("retentionMs", spec.RetentionMs))
		case errors.Is(topicErr, kafka.TopicAlreadyExists):
			a.logger.Debug("Topic created concurrently", slog.String("topic", spec.Name))
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", spec.Name, topicErr))
		}
	}
	return created, errors.Join(errs...)
}

const (
	metadataAttempts = 3
	metadataBackoff  = 500 * time.Millisecond
)

// lookupTopic retries metadata a few times since a just-created topic can
// take a moment to appear on every broker.
func (a *AdminClient) lookupTopic(ctx context.Context, topic string) (kafka.Topic, error) {
	for attempt := 1; ; attempt++ {
		topics, err := a.existingTopics(ctx)
		if err != nil {
			return kafka.Topic{}, err
		}
		if t, ok := topics[topic]; ok {
			return t, nil
		}
		if attempt == metadataAttempts {
			return kafka.Topic{}, fmt.Errorf("topic %s not found", topic)
		}
		select {
		case <-ctx.Done():
			return kafka.Topic{}, ctx.Err()
		case <-time.After(metadataBackoff):
		}
	}
}

// GetTopicInfo returns the partitions of topic with their high-water marks.
func (a *AdminClient) GetTopicInfo(ctx context.Context, topic string) (*TopicInfo, error) {
	t, err := a.lookupTopic(ctx, topic)
	if err != nil {
		return nil, err
	}

	reqs := make([]kafka.OffsetRequest, 0, len(t.Partitions))
	for _, p := range t.Partitions {
		reqs = append(reqs, kafka.LastOffsetOf(p.ID))
	}
	resp, err := a.client.ListOffsets(ctx, &kafka.ListOffsetsRequest{
		Topics: map[string][]kafka.OffsetRequest{topic: reqs},
	})
	if err != nil {
		return nil, fmt.Errorf("list offsets for %s: %w", topic, err)
	}
	hwm := make(map[int]int64, len(t.Partitions))
	for _, po := range resp.Topics[topic] {
		if po.Error != nil {
			return nil, fmt.Errorf("offset for %s:%d: %w", topic, po.Partition, po.Error)
		}
		hwm[po.Partition] = po.LastOffset
	}

	info := &TopicInfo{Name: topic}
	for _, p := range t.Partitions {
		info.Partitions = append(info.Partitions, PartitionInfo{ID: p.ID, HighWaterMark: hwm[p.ID]})
	}
	return info, nil
}

// GetConsumerGroupLag reports, per partition of topic, how far groupID's
// committed offset trails the high-water mark. A partition without a commit
// reports CommittedOffset -1.
func (a *AdminClient) GetConsumerGroupLag(ctx context.Context, topic, groupID string) ([]ConsumerGroupInfo, error) {
	info, err := a.GetTopicInfo(ctx, topic)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(info.Partitions))
	for _, p := range info.Partitions {
		ids = append(ids, p.ID)
	}
	resp, err := a.client.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
		GroupID: groupID,
		Topics:  map[string][]int{topic: ids},
	})
	if err != nil {
		return nil, fmt.Errorf("fetch committed offsets for group %s: %w", groupID, err)
	}
	committed := make(map[int]int64, len(ids))
	for _, po := range resp.Topics[topic] {
		if po.Error == nil {
			committed[po.Partition] = po.CommittedOffset
		}
	}

	out := make([]ConsumerGroupInfo, 0, len(info.Partitions))
	for _, p := range info.Partitions {
		offset, ok := committed[p.ID]
		if !ok {
			offset = -1
		}
		out = append(out, ConsumerGroupInfo{
			GroupID:         groupID,
			Topic:           topic,
			Partition:       p.ID,
			CommittedOffset: offset,
			HighWaterMark:   p.HighWaterMark,
			Lag:             lagOf(offset, p.HighWaterMark),
		})
	}
	return out, nil
}

// lagOf treats a negative committed offset as "nothing consumed yet".
func lagOf(committed, highWaterMark int64) int64 {
	if committed < 0 {
		return highWaterMark
	}
	return max(highWaterMark-committed, 0)
}

func (a *AdminClient) TopicExists(ctx context.Context, topic string) (bool, error) {
	topics, err := a.existingTopics(ctx)
	if err != nil {
		return false, err
	}
	_, ok := topics[topic]
	return ok, nil
}
