package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/config"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

const binanceFeedName = "binance"

// binanceCombined wraps combined-stream messages.
type binanceCombined struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// binanceTicker extracts the 24h ticker fields we use; Binance encodes
// numbers as strings. The 24h change percent shown to users comes from the
// domestic feed only, so the foreign one is not decoded.
type binanceTicker struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
	Volume    string `json:"v"`
}

// BinanceTick is one parsed foreign ticker.
type BinanceTick struct {
	Symbol string
	Price  float64
	Volume float64
}

// ParseBinanceTick decodes a combined-stream ticker message. Plain (single
// stream) messages are also accepted for compatibility.
func ParseBinanceTick(raw []byte) (BinanceTick, error) {
	var out BinanceTick

	payload := raw
	var wrapper binanceCombined
	if err := json.Unmarshal(raw, &wrapper); err != nil {
		return out, fmt.Errorf("decode binance frame: %w", err)
	}
	if wrapper.Stream != "" {
		payload = wrapper.Data
	}

	var t binanceTicker
	if err := json.Unmarshal(payload, &t); err != nil {
		return out, fmt.Errorf("decode binance ticker: %w", err)
	}
	if t.Symbol == "" {
		return out, errors.New("binance ticker missing symbol")
	}
	if t.LastPrice == "" {
		return out, errors.New("binance ticker missing last price")
	}

	price, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return out, fmt.Errorf("binance last price %q: %w", t.LastPrice, err)
	}
	out.Symbol = BinanceSymbol(t.Symbol)
	out.Price = price
	if t.Volume != "" {
		out.Volume, _ = strconv.ParseFloat(t.Volume, 64)
	}
	return out, nil
}

// BinanceSymbol maps a Binance pair (BTCUSDT) to the bare symbol key.
func BinanceSymbol(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), "USDT")
}

// BinanceStreamURL builds the combined-stream URL for one batch of symbols.
func BinanceStreamURL(endpoint string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		streams = append(streams, strings.ToLower(sym)+"usdt@ticker")
	}
	return fmt.Sprintf("%s/stream?streams=%s",
		strings.TrimSuffix(endpoint, "/"), strings.Join(streams, "/"))
}

// SplitBatches chunks symbols into groups of at most size, one websocket
// connection each, respecting the exchange's per-connection stream limit.
func SplitBatches(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 20
	}
	var out [][]string
	for len(symbols) > size {
		out = append(out, symbols[:size])
		symbols = symbols[size:]
	}
	if len(symbols) > 0 {
		out = append(out, symbols)
	}
	return out
}

// BinanceFeed streams USDT tickers into the board, one connection per symbol
// batch.
//
// Reconnect policy (documented choice): exponential backoff from the initial
// delay, doubling to the configured cap, retrying forever. This mirrors the
// dashboard's original Binance client; the Upbit feed deliberately keeps the
// other policy. The asymmetry comes from the source system and is preserved,
// not endorsed.
type BinanceFeed struct {
	conns []*Conn
	board *market.Board
	log   *logger.Logger
	mon   *monitor.Monitor
}

// NewBinanceFeed builds one Conn per batch of symbols.
func NewBinanceFeed(cfg config.BinanceConfig, symbols []string, board *market.Board,
	log *logger.Logger, mon *monitor.Monitor) *BinanceFeed {

	f := &BinanceFeed{
		board: board,
		log:   log.Named(binanceFeedName),
		mon:   mon,
	}

	policy := Policy{
		InitialDelay: time.Duration(cfg.InitialBackoffMs) * time.Millisecond,
		MaxDelay:     time.Duration(cfg.MaxBackoffMs) * time.Millisecond,
		Exponential:  true,
	}
	for i, batch := range SplitBatches(symbols, cfg.BatchSize) {
		f.conns = append(f.conns, NewConn(ConnConfig{
			Name:      fmt.Sprintf("%s-%d", binanceFeedName, i),
			URL:       BinanceStreamURL(cfg.Endpoint, batch),
			Policy:    policy,
			OnMessage: f.handleMessage,
			Log:       f.log,
			Mon:       mon,
		}))
	}
	return f
}

func (f *BinanceFeed) handleMessage(_ int, raw []byte) {
	t, err := ParseBinanceTick(raw)
	if err != nil {
		f.mon.RecordParseDrop(binanceFeedName)
		f.log.Warn("dropping malformed binance frame", zap.Error(err))
		return
	}
	f.mon.RecordTick(binanceFeedName)
	f.board.ApplyForeign(t.Symbol, t.Price, t.Volume, time.Now())
}

// Start launches every batch connection.
func (f *BinanceFeed) Start() {
	for _, c := range f.conns {
		c.Start()
	}
}

// Close closes every batch connection; pending reconnect timers included.
func (f *BinanceFeed) Close() {
	for _, c := range f.conns {
		c.Close()
	}
}

// States returns the per-batch connection states.
func (f *BinanceFeed) States() []State {
	out := make([]State, 0, len(f.conns))
	for _, c := range f.conns {
		out = append(out, c.State())
	}
	return out
}

// State reduces batch states to a single value: Open if every batch is open,
// give-up if any batch gave up, otherwise the most degraded batch state.
func (f *BinanceFeed) State() State {
	worst := StateOpen
	for _, c := range f.conns {
		s := c.State()
		if s == StateClosedGiveUp {
			return StateClosedGiveUp
		}
		if s > worst {
			worst = s
		} else if s == StateConnecting && worst == StateOpen {
			worst = StateConnecting
		}
	}
	return worst
}
