package engine

import (
	"testing"
	"time"

	"premium-watch-go/alert"
	"premium-watch-go/config"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
)

func testConfig() config.AppConfig {
	return config.AppConfig{
		Env:     "test",
		Symbols: []string{"BTC"},
		Feeds: config.FeedsConfig{
			Upbit:   config.UpbitConfig{Endpoint: "ws://127.0.0.1:1", RetryDelayMs: 10, MaxAttempts: 1},
			Binance: config.BinanceConfig{Endpoint: "ws://127.0.0.1:1", BatchSize: 20, InitialBackoffMs: 10, MaxBackoffMs: 20},
		},
		FX: config.FXConfig{DefaultRate: 1470},
	}
}

type firedDispatcher struct {
	fired chan string
}

func (d *firedDispatcher) Dispatch(title, body string) {
	d.fired <- title
}

func TestEngineEvaluatesBoardUpdates(t *testing.T) {
	cfg := testConfig()
	board := market.NewBoard(cfg.Symbols, cfg.FX.DefaultRate, nil, nil)
	disp := &firedDispatcher{fired: make(chan string, 1)}
	registry, err := alert.NewRegistry(board, nil, disp, nil, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	eng, err := New(cfg, board, registry, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.Start()
	defer eng.Stop()

	if _, err := registry.Add(alert.Rule{
		Symbol: "BTC", Metric: alert.MetricDomesticPrice,
		Condition: alert.Above, Threshold: 160000000,
	}); err != nil {
		t.Fatalf("add rule: %v", err)
	}

	board.ApplyDomestic("BTC", 163000000, 1, 0, time.Now())
	select {
	case <-disp.fired:
	case <-time.After(2 * time.Second):
		t.Fatalf("board update never reached the evaluator")
	}
}

func TestEngineHealthAfterDomesticGiveUp(t *testing.T) {
	cfg := testConfig()
	board := market.NewBoard(cfg.Symbols, cfg.FX.DefaultRate, nil, nil)
	registry, err := alert.NewRegistry(board, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	eng, err := New(cfg, board, registry, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if !eng.Health().Healthy {
		t.Fatalf("fresh engine must be healthy")
	}

	eng.Start()
	defer eng.Stop()

	// unroutable endpoint with a one-attempt budget: the domestic feed gives
	// up and the engine reports unhealthy
	deadline := time.Now().Add(5 * time.Second)
	for eng.Health().Healthy {
		if time.Now().After(deadline) {
			t.Fatalf("engine never became unhealthy: %+v", eng.Health())
		}
		time.Sleep(10 * time.Millisecond)
	}
	h := eng.Health()
	if h.Upbit != "gave_up" {
		t.Fatalf("unexpected upbit state %q", h.Upbit)
	}
}

func TestEngineStopWithoutStart(t *testing.T) {
	cfg := testConfig()
	board := market.NewBoard(cfg.Symbols, cfg.FX.DefaultRate, nil, nil)
	registry, err := alert.NewRegistry(board, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	eng, err := New(cfg, board, registry, logger.Nop(), nil)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	eng.Stop() // must not panic or hang
}
