package feed

import (
	"reflect"
	"testing"

	"premium-watch-go/config"
	"premium-watch-go/infrastructure/logger"
)

func TestParseBinanceTickCombined(t *testing.T) {
	raw := []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","s":"BTCUSDT",` +
		`"c":"110000.50","v":"12345.6","P":"1.25"}}`)
	tick, err := ParseBinanceTick(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tick.Symbol != "BTC" {
		t.Fatalf("unexpected symbol %q", tick.Symbol)
	}
	if tick.Price != 110000.50 || tick.Volume != 12345.6 {
		t.Fatalf("unexpected tick %+v", tick)
	}
}

func TestParseBinanceTickPlain(t *testing.T) {
	raw := []byte(`{"e":"24hrTicker","s":"ETHUSDT","c":"4100.2","v":"1","P":"-0.5"}`)
	tick, err := ParseBinanceTick(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tick.Symbol != "ETH" || tick.Price != 4100.2 {
		t.Fatalf("unexpected tick %+v", tick)
	}
}

func TestParseBinanceTickMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"stream":`,
		"missing symbol": `{"e":"24hrTicker","c":"1"}`,
		"missing price":  `{"e":"24hrTicker","s":"BTCUSDT"}`,
		"bad price":      `{"e":"24hrTicker","s":"BTCUSDT","c":"abc"}`,
	}
	for name, raw := range cases {
		if _, err := ParseBinanceTick([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBinanceStreamURL(t *testing.T) {
	got := BinanceStreamURL("wss://stream.binance.com:9443", []string{"BTC", "ETH"})
	want := "wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker"
	if got != want {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestSplitBatches(t *testing.T) {
	symbols := make([]string, 45)
	for i := range symbols {
		symbols[i] = "S"
	}
	batches := SplitBatches(symbols, 20)
	sizes := []int{len(batches[0]), len(batches[1]), len(batches[2])}
	if !reflect.DeepEqual(sizes, []int{20, 20, 5}) {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}
}

func TestBinanceFeedOneConnPerBatch(t *testing.T) {
	symbols := make([]string, 45)
	for i := range symbols {
		symbols[i] = "S"
	}
	f := NewBinanceFeed(config.BinanceConfig{
		Endpoint:         "wss://stream.binance.com:9443",
		BatchSize:        20,
		InitialBackoffMs: 1000,
		MaxBackoffMs:     30000,
	}, symbols, nil, logger.Nop(), nil)

	if got := len(f.conns); got != 3 {
		t.Fatalf("expected 3 connections, got %d", got)
	}
	if got := len(f.States()); got != 3 {
		t.Fatalf("expected 3 states, got %d", got)
	}
	f.Close() // never started; close must still be safe for every batch
}

func TestSplitBatchesSmall(t *testing.T) {
	batches := SplitBatches([]string{"BTC"}, 20)
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("unexpected batches %v", batches)
	}
	if got := SplitBatches(nil, 20); got != nil {
		t.Fatalf("no symbols means no batches, got %v", got)
	}
}
