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
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/airharvest/internal/airports"
	"github.com/cardinalhq/airharvest/internal/fly"
	"github.com/cardinalhq/airharvest/internal/healthcheck"
	"github.com/cardinalhq/airharvest/internal/ingest"
	"github.com/cardinalhq/airharvest/internal/orchestrator"
	"github.com/cardinalhq/airharvest/internal/provider"
	"github.com/cardinalhq/airharvest/internal/streaming"
	"github.com/cardinalhq/airharvest/internal/timechunk"
	"github.com/cardinalhq/airharvest/internal/watermark"
)

const (
	SignalModeStore = "store"
	SignalModeFile  = "file"
)

// Config aggregates configuration for the application.
// Each section is consumed by the package named after it.
type Config struct {
	Kafka        fly.Config         `mapstructure:"kafka"`
	Topics       TopicsConfig       `mapstructure:"topics"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Ingest       IngestConfig       `mapstructure:"ingest"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Signal       SignalConfig       `mapstructure:"signal"`
	Streaming    StreamingConfig    `mapstructure:"streaming"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Health       healthcheck.Config `mapstructure:"health"`
}

type TopicsConfig struct {
	Weather          string `mapstructure:"weather"`
	Flight           string `mapstructure:"flight"`
	HistoricalFlight string `mapstructure:"historical_flight"`
	Prediction       string `mapstructure:"prediction"`
	RetentionMs      int64  `mapstructure:"retention_ms"`
	// File is an optional YAML override, see KafkaTopicsConfig.
	File string `mapstructure:"file"`
}

type ProvidersConfig struct {
	AviationEdgeKey   string        `mapstructure:"aviation_edge_key"`
	AviationEdgeURL   string        `mapstructure:"aviation_edge_url"`
	VisualCrossingKey string        `mapstructure:"visual_crossing_key"`
	VisualCrossingURL string        `mapstructure:"visual_crossing_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	RequestDelay      time.Duration    `mapstructure:"request_delay"`
	RateLimitCooldown time.Duration    `mapstructure:"rate_limit_cooldown"`
	BackdateMargin    time.Duration    `mapstructure:"backdate_margin"`
	FlightLatency     time.Duration    `mapstructure:"flight_latency"`
	WeatherLatency    time.Duration    `mapstructure:"weather_latency"`
	WeatherWindow     timechunk.Window `mapstructure:"weather_window"`
	HistoryWindow     timechunk.Window `mapstructure:"history_window"`
}

type OrchestratorConfig struct {
	BatchSize   int           `mapstructure:"batch_size"`
	CyclePeriod time.Duration `mapstructure:"cycle_period"`
}

type SignalConfig struct {
	Mode         string        `mapstructure:"mode"` // "store" or "file"
	FlagFile     string        `mapstructure:"flag_file"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type StreamingConfig struct {
	Mode              string        `mapstructure:"mode"` // "batch" or "message"
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

type CacheConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Redis returns the shared cache options. An empty host disables the shared tier.
func (c CacheConfig) Redis() airports.RedisOptions {
	return airports.RedisOptions{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		DB:       c.DB,
	}
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Kafka: *fly.DefaultConfig(),
		Topics: TopicsConfig{
			Weather:          TopicWeather,
			Flight:           TopicFlight,
			HistoricalFlight: TopicHistoricalFlight,
			Prediction:       TopicPrediction,
			RetentionMs:      fly.DefaultRetentionMs,
		},
		Providers: ProvidersConfig{
			AviationEdgeURL:   provider.DefaultAviationEdgeURL,
			VisualCrossingURL: provider.DefaultVisualCrossingURL,
			Timeout:           provider.DefaultTimeout,
		},
		Ingest: IngestConfig{
			RequestDelay:      ingest.DefaultRequestDelay,
			RateLimitCooldown: ingest.DefaultRateLimitCooldown,
			BackdateMargin:    watermark.DefaultBackdateMargin,
			FlightLatency:     ingest.FlightLatency,
			WeatherWindow:     timechunk.Window{Years: 1},
			HistoryWindow:     timechunk.Window{Days: 360},
		},
		Orchestrator: OrchestratorConfig{
			BatchSize:   orchestrator.DefaultBatchSize,
			CyclePeriod: orchestrator.DefaultCyclePeriod,
		},
		Signal: SignalConfig{
			Mode:         SignalModeStore,
			FlagFile:     "batch_complete.flag",
			PollInterval: orchestrator.DefaultSignalPollInterval,
		},
		Streaming: StreamingConfig{
			Mode:              string(streaming.ModeBatch),
			HeartbeatInterval: streaming.DefaultHeartbeatInterval,
			RetryBackoff:      streaming.DefaultRetryBackoff,
		},
		Cache: CacheConfig{
			Port: 6379,
			TTL:  airports.DefaultTTL,
		},
		Health: healthcheck.Config{
			Port: healthcheck.DefaultPort,
		},
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "AIRHARVEST" and the dot character
// in keys is replaced by an underscore. For example, "kafka.brokers" becomes
// "AIRHARVEST_KAFKA_BROKERS".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("AIRHARVEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	bindLegacyEnvs(v)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if b := v.GetString("kafka.brokers"); b != "" {
		cfg.Kafka.Brokers = splitList(b)
	}
	return cfg, nil
}

// bindLegacyEnvs accepts the unprefixed names older deployments use.
func bindLegacyEnvs(v *viper.Viper) {
	_ = v.BindEnv("providers.aviation_edge_key", "AIRHARVEST_PROVIDERS_AVIATION_EDGE_KEY", "AVIATION_EDGE_API_KEY")
	_ = v.BindEnv("providers.visual_crossing_key", "AIRHARVEST_PROVIDERS_VISUAL_CROSSING_KEY", "VISUAL_CROSSING_API_KEY")
	_ = v.BindEnv("topics.file", "AIRHARVEST_TOPICS_FILE", "KAFKA_TOPICS_FILE")
	_ = v.BindEnv("kafka.brokers", "AIRHARVEST_KAFKA_BROKERS", "KAFKA_BROKERS")
	_ = v.BindEnv("signal.flag_file", "AIRHARVEST_SIGNAL_FLAG_FILE", "FLAG_FILE_PATH")
	_ = v.BindEnv("health.port", "AIRHARVEST_HEALTH_PORT", "HEALTH_CHECK_PORT")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(append([]string(nil), parts...), tag)
		if f.Type.Kind() == reflect.Struct && f.Type != reflect.TypeOf(time.Time{}) {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if err := c.Kafka.Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := streaming.ParseMode(c.Streaming.Mode); err != nil {
		errs = append(errs, err)
	}
	switch c.Signal.Mode {
	case SignalModeStore:
	case SignalModeFile:
		if c.Signal.FlagFile == "" {
			errs = append(errs, errors.New("signal: file mode needs signal.flag_file"))
		}
	default:
		errs = append(errs, fmt.Errorf("signal: unknown mode %q", c.Signal.Mode))
	}
	for name, topic := range map[string]string{
		TopicWeather:          c.Topics.Weather,
		TopicFlight:           c.Topics.Flight,
		TopicHistoricalFlight: c.Topics.HistoricalFlight,
		TopicPrediction:       c.Topics.Prediction,
	} {
		if strings.TrimSpace(topic) == "" {
			errs = append(errs, fmt.Errorf("topics: %s topic name is empty", name))
		}
	}
	if c.Orchestrator.BatchSize < 1 {
		errs = append(errs, errors.New("orchestrator: batch_size must be positive"))
	}
	if c.Health.Port < 0 || c.Health.Port > 65535 {
		errs = append(errs, fmt.Errorf("health: invalid port %d", c.Health.Port))
	}
	if c.Ingest.BackdateMargin < 0 {
		errs = append(errs, errors.New("ingest: backdate_margin must not be negative"))
	}
	return errors.Join(errs...)
}

// RequireProviderKeys is checked only by the commands that call providers.
func (c *Config) RequireProviderKeys() error {
	var errs []error
	if c.Providers.AviationEdgeKey == "" {
		errs = append(errs, errors.New("providers: aviation edge API key is not set (AVIATION_EDGE_API_KEY)"))
	}
	if c.Providers.VisualCrossingKey == "" {
		errs = append(errs, errors.New("providers: visual crossing API key is not set (VISUAL_CROSSING_API_KEY)"))
	}
	return errors.Join(errs...)
}

// TopicRegistry builds the registry and applies the override file when one is configured.
func (c *Config) TopicRegistry() (*TopicRegistry, error) {
	tr := NewTopicRegistry(c.Topics, &c.Kafka)
	if c.Topics.File == "" {
		return tr, nil
	}
	overrides, err := LoadKafkaTopicsConfig(c.Topics.File)
	if err != nil {
		return nil, err
	}
	if err := tr.ApplyOverrides(overrides); err != nil {
		return nil, err
	}
	return tr, nil
}
