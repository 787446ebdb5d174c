package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"premium-watch-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env     string        `yaml:"env"`
	Symbols []string      `yaml:"symbols"`
	Feeds   FeedsConfig   `yaml:"feeds"`
	FX      FXConfig      `yaml:"fx"`
	Storage StorageConfig `yaml:"storage"`
	API     APIConfig     `yaml:"api"`
	Metrics MetricsConfig `yaml:"metrics"`
	Push    PushConfig    `yaml:"push"`
	Logging logger.Config `yaml:"logging"`
}

type FeedsConfig struct {
	Upbit   UpbitConfig   `yaml:"upbit"`
	Binance BinanceConfig `yaml:"binance"`
}

// UpbitConfig configures the domestic (KRW) feed. Reconnects use a fixed
// delay with a hard attempt ceiling; past the ceiling the feed gives up and
// surfaces a terminal signal.
type UpbitConfig struct {
	Endpoint     string `yaml:"endpoint"`
	RestEndpoint string `yaml:"restEndpoint"` // initial snapshot fetch
	RetryDelayMs int    `yaml:"retryDelayMs"` // fixed delay between attempts
	MaxAttempts  int    `yaml:"maxAttempts"`  // consecutive failures before give-up
}

// BinanceConfig configures the foreign (USDT) feed. Reconnects use capped
// exponential backoff and never give up.
type BinanceConfig struct {
	Endpoint         string `yaml:"endpoint"`
	BatchSize        int    `yaml:"batchSize"` // symbols per connection
	InitialBackoffMs int    `yaml:"initialBackoffMs"`
	MaxBackoffMs     int    `yaml:"maxBackoffMs"`
}

type FXConfig struct {
	DefaultRate float64 `yaml:"defaultRate"` // USD/KRW used until live data arrives
	WSEndpoint  string  `yaml:"wsEndpoint"`  // optional streaming source
	RestURL     string  `yaml:"restURL"`     // optional REST fallback
	RefreshCron string  `yaml:"refreshCron"` // cron spec for the REST fallback
}

type StorageConfig struct {
	Path string `yaml:"path"` // sqlite database file
}

type APIConfig struct {
	Addr string `yaml:"addr"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the metrics listener
}

type PushConfig struct {
	Endpoint string `yaml:"endpoint"` // push relay; empty disables forwarding
}

// Load reads YAML config from path and applies basic validation.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment-specific
// fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("PW_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("PW_PUSH_ENDPOINT"); v != "" {
		cfg.Push.Endpoint = v
	}
	if v := os.Getenv("PW_FX_REST_URL"); v != "" {
		cfg.FX.RestURL = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Feeds.Upbit.Endpoint == "" {
		cfg.Feeds.Upbit.Endpoint = "wss://api.upbit.com/websocket/v1"
	}
	if cfg.Feeds.Upbit.RestEndpoint == "" {
		cfg.Feeds.Upbit.RestEndpoint = "https://api.upbit.com/v1"
	}
	if cfg.Feeds.Upbit.RetryDelayMs == 0 {
		cfg.Feeds.Upbit.RetryDelayMs = 3000
	}
	if cfg.Feeds.Upbit.MaxAttempts == 0 {
		cfg.Feeds.Upbit.MaxAttempts = 5
	}
	if cfg.Feeds.Binance.Endpoint == "" {
		cfg.Feeds.Binance.Endpoint = "wss://stream.binance.com:9443"
	}
	if cfg.Feeds.Binance.BatchSize == 0 {
		cfg.Feeds.Binance.BatchSize = 20
	}
	if cfg.Feeds.Binance.InitialBackoffMs == 0 {
		cfg.Feeds.Binance.InitialBackoffMs = 1000
	}
	if cfg.Feeds.Binance.MaxBackoffMs == 0 {
		cfg.Feeds.Binance.MaxBackoffMs = 30000
	}
	if cfg.FX.DefaultRate == 0 {
		cfg.FX.DefaultRate = 1470
	}
	if cfg.FX.RefreshCron == "" {
		cfg.FX.RefreshCron = "@every 10m"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "premium-watch.db"
	}
	if cfg.API.Addr == "" {
		cfg.API.Addr = ":8080"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging = logger.DefaultConfig()
	}
}

// Validate ensures required fields are present.
func Validate(cfg AppConfig) error {
	if cfg.Env == "" {
		return errors.New("env is required")
	}
	if len(cfg.Symbols) == 0 {
		return errors.New("symbols list is required")
	}
	for _, sym := range cfg.Symbols {
		if sym == "" {
			return errors.New("symbols must not contain empty entries")
		}
		if sym != strings.ToUpper(sym) {
			return fmt.Errorf("symbol %s must be upper case", sym)
		}
	}
	if cfg.Feeds.Upbit.RetryDelayMs < 0 {
		return errors.New("feeds.upbit.retryDelayMs must be >= 0")
	}
	if cfg.Feeds.Upbit.MaxAttempts < 0 {
		return errors.New("feeds.upbit.maxAttempts must be >= 0")
	}
	if cfg.Feeds.Binance.BatchSize <= 0 {
		return errors.New("feeds.binance.batchSize must be > 0")
	}
	if cfg.Feeds.Binance.InitialBackoffMs <= 0 {
		return errors.New("feeds.binance.initialBackoffMs must be > 0")
	}
	if cfg.Feeds.Binance.MaxBackoffMs < cfg.Feeds.Binance.InitialBackoffMs {
		return errors.New("feeds.binance.maxBackoffMs must be >= initialBackoffMs")
	}
	if cfg.FX.DefaultRate <= 0 {
		return errors.New("fx.defaultRate must be > 0")
	}
	if cfg.Storage.Path == "" {
		return errors.New("storage.path is required")
	}
	return nil
}
