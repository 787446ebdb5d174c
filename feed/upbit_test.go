package feed

import (
	"errors"
	"testing"
)

func TestParseUpbitTicker(t *testing.T) {
	raw := []byte(`{"type":"ticker","code":"KRW-BTC","trade_price":163000000,` +
		`"signed_change_rate":0.012,"acc_trade_volume_24h":1234.5,"timestamp":1700000000000}`)
	tick, err := ParseUpbitTicker(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tick.Code != "KRW-BTC" || tick.TradePrice != 163000000 {
		t.Fatalf("unexpected tick %+v", tick)
	}
	if tick.SignedChangeRate != 0.012 {
		t.Fatalf("unexpected change rate %f", tick.SignedChangeRate)
	}
}

func TestParseUpbitTickerExtraFields(t *testing.T) {
	// unknown fields from the exchange must not break decoding
	raw := []byte(`{"type":"ticker","code":"KRW-ETH","trade_price":5000000,` +
		`"opening_price":4900000,"stream_type":"REALTIME"}`)
	tick, err := ParseUpbitTicker(raw)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if tick.Code != "KRW-ETH" {
		t.Fatalf("unexpected code %q", tick.Code)
	}
}

func TestParseUpbitTickerNonTicker(t *testing.T) {
	_, err := ParseUpbitTicker([]byte(`{"type":"trade","code":"KRW-BTC"}`))
	if !errors.Is(err, ErrNotTicker) {
		t.Fatalf("expected ErrNotTicker, got %v", err)
	}
}

func TestParseUpbitTickerMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":     `{"type":"ticker"`,
		"missing code": `{"type":"ticker","trade_price":1}`,
	}
	for name, raw := range cases {
		if _, err := ParseUpbitTicker([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestUpbitSymbol(t *testing.T) {
	if got := UpbitSymbol("KRW-BTC"); got != "BTC" {
		t.Fatalf("unexpected symbol %q", got)
	}
	if got := UpbitSymbol("BTC"); got != "BTC" {
		t.Fatalf("prefix-free code must pass through, got %q", got)
	}
}
