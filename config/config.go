// Package config loads the monitor configuration: a YAML file for the
// structured tables, overridden by SENTRY_* environment variables (an
// optional .env file is read first).
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"token-sentry/internal/collector"
	"token-sentry/internal/confidence"
	"token-sentry/internal/indicator"
	"token-sentry/internal/model"
	"token-sentry/internal/zone"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SENTRY"

// Config holds all application configuration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	BaseInterval    string        `yaml:"base_interval"`    // 1m,5m,15m,30m,1h,4h,12h,1d,3d,1w
	TargetIntervals []int         `yaml:"target_intervals"` // minutes
	Anchor          int64         `yaml:"anchor"`           // bucket alignment epoch, unix seconds
	Tokens          []TokenConfig `yaml:"tokens"`

	Source      SourceConfig                `yaml:"source"`
	Schedule    ScheduleConfig              `yaml:"schedule"`
	Zones       []zone.Config               `yaml:"zones"`
	ZoneWeights *zone.Weights               `yaml:"zone_weights"`
	Confidence  ConfidenceConfig            `yaml:"confidence"`
	Divergence  *indicator.DivergenceConfig `yaml:"divergence"`
	Reseed      bool                        `yaml:"reseed"`

	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	Strategy StrategyConfig `yaml:"strategy"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// TokenConfig is one monitored token.
type TokenConfig struct {
	Address   string `yaml:"address"`
	CreatedAt int64  `yaml:"created_at"` // unix seconds; 0 uses the first sample
}

// SourceConfig configures the price API.
type SourceConfig struct {
	BaseURL           string        `yaml:"base_url" envconfig:"SOURCE_URL"`
	APIKey            string        `yaml:"api_key" envconfig:"API_KEY"`
	Chain             string        `yaml:"chain" envconfig:"CHAIN"`
	OHLCV             bool          `yaml:"ohlcv" envconfig:"SOURCE_OHLCV"`
	Timeout           time.Duration `yaml:"timeout" envconfig:"SOURCE_TIMEOUT"`
	RequestsPerMinute int           `yaml:"requests_per_minute" envconfig:"SOURCE_RPM"`
	Backfill          time.Duration `yaml:"backfill"` // history requested on the first tick
}

// ScheduleConfig sets the ingestion schedule (robfig/cron syntax).
type ScheduleConfig struct {
	Cron          string `yaml:"cron" envconfig:"CRON"`
	CheckpointSec int    `yaml:"checkpoint_sec"`
}

// ConfidenceConfig tunes the confidence calculator and the per-zone
// parameters applied to key_zone_1..6.
type ConfidenceConfig struct {
	confidence.Config `yaml:",inline"`
	Zones             []confidence.Params `yaml:"zones"`
}

// StorageConfig locates the sinks. Empty values disable the sink.
type StorageConfig struct {
	SQLitePath    string `yaml:"sqlite_path" envconfig:"SQLITE_PATH"`
	RedisAddr     string `yaml:"redis_addr" envconfig:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" envconfig:"REDIS_DB"`
}

// ServerConfig holds listen addresses. Empty disables the listener.
type ServerConfig struct {
	MetricsAddr string `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	GatewayAddr string `yaml:"gateway_addr" envconfig:"GATEWAY_ADDR"`
	ReplaySize  int    `yaml:"replay_size"`
}

// StrategyConfig enables the confidence policy.
type StrategyConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"STRATEGY"`
	Buy     float64 `yaml:"buy"`
	Exit    float64 `yaml:"exit"`
}

// NotifyConfig sets the alert channels. Empty values disable a channel.
type NotifyConfig struct {
	WebhookURL    string `yaml:"webhook_url" envconfig:"WEBHOOK_URL"`
	TelegramToken string `yaml:"telegram_token" envconfig:"TELEGRAM_TOKEN"`
	TelegramChat  string `yaml:"telegram_chat" envconfig:"TELEGRAM_CHAT"`
	PerMinute     int    `yaml:"per_minute"`
}

// env is the flat override set read by envconfig. Sections are embedded
// so their keys stay directly under the SENTRY_ prefix.
type env struct {
	LogLevel     string   `envconfig:"LOG_LEVEL"`
	BaseInterval string   `envconfig:"BASE_INTERVAL"`
	Tokens       []string `envconfig:"TOKENS"`
	SourceConfig
	ScheduleConfig
	StorageConfig
	ServerConfig
	StrategyConfig
	NotifyConfig
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:        "info",
		BaseInterval:    "5m",
		TargetIntervals: []int{60, 240},
		Source: SourceConfig{
			BaseURL:           "https://public-api.birdeye.so",
			Chain:             "solana",
			Timeout:           10 * time.Second,
			RequestsPerMinute: 60,
			Backfill:          7 * 24 * time.Hour,
		},
		Schedule: ScheduleConfig{CheckpointSec: 300},
		Confidence: ConfidenceConfig{
			Config: confidence.DefaultConfig,
			Zones:  append([]confidence.Params(nil), confidence.DefaultOverrides[:]...),
		},
		Server:   ServerConfig{MetricsAddr: ":9090", ReplaySize: 500},
		Strategy: StrategyConfig{Buy: 0.7, Exit: 0.2},
		Notify:   NotifyConfig{PerMinute: 20},
	}
}

// Load reads path (a missing file is not an error), then applies .env and
// SENTRY_* overrides, then validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays the SENTRY_* variables that are set.
func (c *Config) applyEnv() error {
	e := env{
		LogLevel:       c.LogLevel,
		BaseInterval:   c.BaseInterval,
		SourceConfig:   c.Source,
		ScheduleConfig: c.Schedule,
		StorageConfig:  c.Storage,
		ServerConfig:   c.Server,
		StrategyConfig: c.Strategy,
		NotifyConfig:   c.Notify,
	}
	if err := envconfig.Process(EnvPrefix, &e); err != nil {
		return fmt.Errorf("process env config: %w", err)
	}
	c.LogLevel, c.BaseInterval = e.LogLevel, e.BaseInterval
	c.Source, c.Schedule, c.Storage = e.SourceConfig, e.ScheduleConfig, e.StorageConfig
	c.Server, c.Strategy, c.Notify = e.ServerConfig, e.StrategyConfig, e.NotifyConfig
	if len(e.Tokens) > 0 {
		c.Tokens = c.Tokens[:0]
		for _, t := range e.Tokens {
			if t = strings.TrimSpace(t); t != "" {
				c.Tokens = append(c.Tokens, TokenConfig{Address: t})
			}
		}
	}
	return nil
}

// BaseMinutes parses BaseInterval.
func (c *Config) BaseMinutes() (int, error) {
	for m, label := range collector.ValidBaseIntervals {
		if strings.EqualFold(label, c.BaseInterval) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("base interval %q: %w", c.BaseInterval, model.ErrInvalidInterval)
}

// Validate checks intervals and table sizes. Misconfiguration is fatal at
// start-up.
func (c *Config) Validate() error {
	if len(c.Zones) != 0 && len(c.Zones) != 3 {
		return fmt.Errorf("zones: expected 3 horizons, got %d", len(c.Zones))
	}
	if n := len(c.Confidence.Zones); n != 0 && n != confidence.ZoneCount {
		return fmt.Errorf("confidence.zones: expected %d entries, got %d", confidence.ZoneCount, n)
	}
	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Address == "" {
			return errors.New("tokens: empty address")
		}
		if seen[t.Address] {
			return fmt.Errorf("tokens: duplicate %s", t.Address)
		}
		seen[t.Address] = true
	}
	// Interval rules live on collector.Config.
	cc, err := c.CollectorConfig(TokenConfig{Address: "validate"})
	if err != nil {
		return err
	}
	return cc.Validate()
}

// CollectorConfig builds the collector configuration of one token.
func (c *Config) CollectorConfig(t TokenConfig) (collector.Config, error) {
	base, err := c.BaseMinutes()
	if err != nil {
		return collector.Config{}, err
	}
	cc := collector.DefaultConfig(t.Address, base)
	if c.TargetIntervals != nil {
		cc.Targets = append([]int(nil), c.TargetIntervals...)
	}
	cc.Anchor = c.Anchor
	cc.CreatedAt = t.CreatedAt
	if len(c.Zones) == 3 {
		copy(cc.Zones[:], c.Zones)
	}
	if c.ZoneWeights != nil {
		cc.ZoneWeights = *c.ZoneWeights
	}
	cc.Confidence = c.Confidence.Config
	if len(c.Confidence.Zones) == confidence.ZoneCount {
		copy(cc.ZoneOverrides[:], c.Confidence.Zones)
	}
	if c.Divergence != nil {
		cc.Divergence = *c.Divergence
	}
	cc.Reseed = c.Reseed
	return cc, nil
}

// CronSpec returns the configured schedule or one run per base interval.
func (c *Config) CronSpec() (string, error) {
	if c.Schedule.Cron != "" {
		return c.Schedule.Cron, nil
	}
	base, err := c.BaseMinutes()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("@every %dm", base), nil
}
