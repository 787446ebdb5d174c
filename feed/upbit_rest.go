package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
)

// UpbitSnapshot fetches the current tickers over REST so the board is warm
// before the first websocket frame arrives.
type UpbitSnapshot struct {
	BaseURL string
	Client  *http.Client
}

type upbitRestTicker struct {
	Market            string  `json:"market"`
	TradePrice        float64 `json:"trade_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	Timestamp         int64   `json:"timestamp"`
}

// Load fetches tickers for symbols and applies them to the board. Failures
// are non-fatal for the caller: the websocket feed will fill the board
// anyway.
func (s UpbitSnapshot) Load(ctx context.Context, symbols []string, board *market.Board, log *logger.Logger) error {
	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	markets := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		markets = append(markets, "KRW-"+sym)
	}
	u := fmt.Sprintf("%s/ticker?markets=%s", strings.TrimSuffix(s.BaseURL, "/"),
		url.QueryEscape(strings.Join(markets, ",")))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build snapshot request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch upbit snapshot: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upbit snapshot status %d", resp.StatusCode)
	}

	var tickers []upbitRestTicker
	if err := json.NewDecoder(resp.Body).Decode(&tickers); err != nil {
		return fmt.Errorf("decode upbit snapshot: %w", err)
	}

	for _, t := range tickers {
		if t.Market == "" || t.TradePrice == 0 {
			continue
		}
		ts := time.Now()
		if t.Timestamp > 0 {
			ts = time.UnixMilli(t.Timestamp)
		}
		board.ApplyDomestic(UpbitSymbol(t.Market), t.TradePrice,
			t.AccTradeVolume24h, t.SignedChangeRate*100, ts)
	}
	log.Info("upbit snapshot loaded", zap.Int("tickers", len(tickers)))
	return nil
}
