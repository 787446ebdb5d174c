package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const minimalConfig = `
env: test
symbols:
  - BTC
  - ETH
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feeds.Upbit.Endpoint != "wss://api.upbit.com/websocket/v1" {
		t.Fatalf("unexpected upbit endpoint %q", cfg.Feeds.Upbit.Endpoint)
	}
	if cfg.Feeds.Upbit.RetryDelayMs != 3000 || cfg.Feeds.Upbit.MaxAttempts != 5 {
		t.Fatalf("unexpected upbit retry defaults %+v", cfg.Feeds.Upbit)
	}
	if cfg.Feeds.Binance.BatchSize != 20 || cfg.Feeds.Binance.MaxBackoffMs != 30000 {
		t.Fatalf("unexpected binance defaults %+v", cfg.Feeds.Binance)
	}
	if cfg.FX.DefaultRate != 1470 {
		t.Fatalf("unexpected default rate %f", cfg.FX.DefaultRate)
	}
	if cfg.API.Addr != ":8080" || cfg.Storage.Path != "premium-watch.db" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
env: prod
symbols: [BTC]
feeds:
  upbit:
    retryDelayMs: 500
    maxAttempts: 3
fx:
  defaultRate: 1500
`))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Feeds.Upbit.RetryDelayMs != 500 || cfg.Feeds.Upbit.MaxAttempts != 3 {
		t.Fatalf("unexpected upbit config %+v", cfg.Feeds.Upbit)
	}
	if cfg.FX.DefaultRate != 1500 {
		t.Fatalf("unexpected rate %f", cfg.FX.DefaultRate)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := map[string]string{
		"missing env":      "symbols: [BTC]",
		"missing symbols":  "env: test",
		"empty symbol":     "env: test\nsymbols: ['']",
		"lowercase symbol": "env: test\nsymbols: [btc]",
		"bad backoff": `
env: test
symbols: [BTC]
feeds:
  binance:
    initialBackoffMs: 5000
    maxBackoffMs: 1000
`,
	}
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("PW_STORAGE_PATH", "/tmp/override.db")
	t.Setenv("PW_PUSH_ENDPOINT", "https://push.example/relay")

	cfg, err := LoadWithEnvOverrides(writeConfig(t, minimalConfig))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Storage.Path != "/tmp/override.db" {
		t.Fatalf("env override not applied: %q", cfg.Storage.Path)
	}
	if cfg.Push.Endpoint != "https://push.example/relay" {
		t.Fatalf("env override not applied: %q", cfg.Push.Endpoint)
	}
}
