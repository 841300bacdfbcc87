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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/airharvest/internal/timechunk"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "weather", cfg.Topics.Weather)
	assert.Equal(t, "historical-flight", cfg.Topics.HistoricalFlight)
	assert.Equal(t, int64(604800000), cfg.Topics.RetentionMs)
	assert.Equal(t, 1500*time.Millisecond, cfg.Ingest.RequestDelay)
	assert.Equal(t, 30*time.Second, cfg.Ingest.RateLimitCooldown)
	assert.Equal(t, 24*time.Hour, cfg.Ingest.BackdateMargin)
	assert.Equal(t, 96*time.Hour, cfg.Ingest.FlightLatency)
	assert.Equal(t, timechunk.Window{Years: 1}, cfg.Ingest.WeatherWindow)
	assert.Equal(t, timechunk.Window{Days: 360}, cfg.Ingest.HistoryWindow)
	assert.Equal(t, 100, cfg.Orchestrator.BatchSize)
	assert.Equal(t, 2*time.Hour, cfg.Orchestrator.CyclePeriod)
	assert.Equal(t, SignalModeStore, cfg.Signal.Mode)
	assert.Equal(t, "batch", cfg.Streaming.Mode)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.False(t, cfg.Cache.Redis().Enabled())
	assert.Equal(t, 8090, cfg.Health.Port)
	assert.False(t, cfg.Health.Pprof)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("AIRHARVEST_KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("AIRHARVEST_KAFKA_SASL_ENABLED", "true")
	t.Setenv("AIRHARVEST_KAFKA_SASL_USERNAME", "alice")
	t.Setenv("AIRHARVEST_KAFKA_CONSUMER_BATCH_SIZE", "200")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.Kafka.Brokers)
	require.True(t, cfg.Kafka.SASLEnabled)
	require.Equal(t, "alice", cfg.Kafka.SASLUsername)
	require.Equal(t, 200, cfg.Kafka.ConsumerBatchSize)
}

func TestLoadNestedEnv(t *testing.T) {
	t.Setenv("AIRHARVEST_INGEST_REQUEST_DELAY", "250ms")
	t.Setenv("AIRHARVEST_INGEST_WEATHER_WINDOW_YEARS", "0")
	t.Setenv("AIRHARVEST_INGEST_WEATHER_WINDOW_DAYS", "30")
	t.Setenv("AIRHARVEST_TOPICS_RETENTION_MS", "3600000")
	t.Setenv("AIRHARVEST_SIGNAL_MODE", "file")
	t.Setenv("AIRHARVEST_STREAMING_MODE", "message")
	t.Setenv("AIRHARVEST_CACHE_HOST", "redis")
	t.Setenv("AIRHARVEST_ORCHESTRATOR_BATCH_SIZE", "25")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.Ingest.RequestDelay)
	assert.Equal(t, timechunk.Window{Days: 30}, cfg.Ingest.WeatherWindow)
	assert.Equal(t, int64(3600000), cfg.Topics.RetentionMs)
	assert.Equal(t, SignalModeFile, cfg.Signal.Mode)
	assert.Equal(t, "message", cfg.Streaming.Mode)
	assert.True(t, cfg.Cache.Redis().Enabled())
	assert.Equal(t, 25, cfg.Orchestrator.BatchSize)
	require.NoError(t, cfg.Validate())
}

func TestLoadLegacyProviderKeys(t *testing.T) {
	t.Setenv("AVIATION_EDGE_API_KEY", "ae-key")
	t.Setenv("VISUAL_CROSSING_API_KEY", "vc-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "ae-key", cfg.Providers.AviationEdgeKey)
	assert.Equal(t, "vc-key", cfg.Providers.VisualCrossingKey)
	assert.NoError(t, cfg.RequireProviderKeys())
}

func TestLoadHealthPort(t *testing.T) {
	t.Setenv("HEALTH_CHECK_PORT", "9090")
	t.Setenv("AIRHARVEST_HEALTH_PPROF", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Health.Port)
	assert.True(t, cfg.Health.Pprof)
}

func TestPrefixedProviderKeyWins(t *testing.T) {
	t.Setenv("AIRHARVEST_PROVIDERS_AVIATION_EDGE_KEY", "new")
	t.Setenv("AVIATION_EDGE_API_KEY", "old")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "new", cfg.Providers.AviationEdgeKey)
}

func TestRequireProviderKeys(t *testing.T) {
	cfg := DefaultConfig()
	err := cfg.RequireProviderKeys()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AVIATION_EDGE_API_KEY")
	assert.Contains(t, err.Error(), "VISUAL_CROSSING_API_KEY")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"unknown streaming mode", func(c *Config) { c.Streaming.Mode = "bulk" }, "unknown consumer mode"},
		{"unknown signal mode", func(c *Config) { c.Signal.Mode = "carrier-pigeon" }, "unknown mode"},
		{"file mode without path", func(c *Config) { c.Signal.Mode = SignalModeFile; c.Signal.FlagFile = "" }, "flag_file"},
		{"empty topic", func(c *Config) { c.Topics.Prediction = " " }, "prediction topic name is empty"},
		{"zero batch", func(c *Config) { c.Orchestrator.BatchSize = 0 }, "batch_size"},
		{"negative margin", func(c *Config) { c.Ingest.BackdateMargin = -time.Hour }, "backdate_margin"},
		{"bad health port", func(c *Config) { c.Health.Port = 70000 }, "health"},
		{"no brokers", func(c *Config) { c.Kafka.Brokers = nil }, "broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}
