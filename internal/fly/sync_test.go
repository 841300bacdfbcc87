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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSyncConfig(t *testing.T) {
	cfg := BuildSyncConfig([]TopicSpec{
		{Name: "flight", Partitions: 6, ReplicationFactor: 3, RetentionMs: 1000},
		{Name: "weather"},
	}, 0)

	assert.Equal(t, 5*time.Minute, cfg.OperationTimeout)
	require.Len(t, cfg.Topics, 2)

	assert.Equal(t, "flight", cfg.Topics[0].Name)
	assert.Equal(t, 6, cfg.Topics[0].PartitionCount)
	assert.Equal(t, 3, cfg.Topics[0].ReplicationFactor)
	assert.Equal(t, "1000", cfg.Topics[0].Config["retention.ms"])
	assert.Equal(t, "20000000", cfg.Topics[0].Config["max.message.bytes"])

	assert.Equal(t, 1, cfg.Topics[1].PartitionCount)
	assert.Equal(t, "604800000", cfg.Topics[1].Config["retention.ms"])
	assert.Equal(t, 1, cfg.Defaults.PartitionCount)
	assert.Equal(t, "20000000", cfg.Defaults.TopicConfig["max.message.bytes"])
}

func TestSyncTopicsRejectsBadSASL(t *testing.T) {
	syncer := NewFactory(&Config{
		Brokers:       []string{"localhost:9092"},
		SASLEnabled:   true,
		SASLMechanism: "GSSAPI",
	}).CreateTopicSyncer()

	err := syncer.SyncTopics(context.Background(), BuildSyncConfig(nil, time.Second), false)
	assert.ErrorContains(t, err, "unsupported SASL mechanism")
}
