package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"premium-watch-go/config"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

const upbitFeedName = "upbit"

// ErrNotTicker marks frames of other stream types; they are skipped without
// counting as parse failures.
var ErrNotTicker = errors.New("not a ticker frame")

// UpbitTicker holds the fields we consume from an Upbit ticker frame.
// Unknown extra fields are ignored by the decoder.
type UpbitTicker struct {
	Type              string  `json:"type"`
	Code              string  `json:"code"`
	TradePrice        float64 `json:"trade_price"`
	SignedChangeRate  float64 `json:"signed_change_rate"`
	AccTradeVolume24h float64 `json:"acc_trade_volume_24h"`
	Timestamp         int64   `json:"timestamp"` // ms epoch
}

// ParseUpbitTicker decodes one frame. Upbit delivers both text and binary
// frames carrying the same JSON.
func ParseUpbitTicker(raw []byte) (UpbitTicker, error) {
	var t UpbitTicker
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("decode upbit frame: %w", err)
	}
	if t.Type != "" && t.Type != "ticker" {
		return t, ErrNotTicker
	}
	if t.Code == "" {
		return t, errors.New("upbit frame missing code")
	}
	return t, nil
}

// UpbitSymbol maps an Upbit market code (KRW-BTC) to the bare symbol key.
func UpbitSymbol(code string) string {
	return strings.TrimPrefix(code, "KRW-")
}

// UpbitFeed streams KRW tickers into the board.
//
// Reconnect policy (documented choice): fixed delay with a hard attempt
// ceiling and a terminal give-up signal, mirroring the dashboard's original
// Upbit client. The Binance feed deliberately uses the other policy; see
// BinanceFeed.
type UpbitFeed struct {
	conn  *Conn
	board *market.Board
	log   *logger.Logger
	mon   *monitor.Monitor
}

// NewUpbitFeed subscribes to ticker frames for symbols. onGiveUp, if
// non-nil, is invoked once when the reconnect budget is exhausted.
func NewUpbitFeed(cfg config.UpbitConfig, symbols []string, board *market.Board,
	log *logger.Logger, mon *monitor.Monitor, onGiveUp func(error)) *UpbitFeed {

	f := &UpbitFeed{
		board: board,
		log:   log.Named(upbitFeedName),
		mon:   mon,
	}

	codes := make([]string, 0, len(symbols))
	for _, sym := range symbols {
		codes = append(codes, "KRW-"+sym)
	}
	handshake, _ := json.Marshal([]interface{}{
		map[string]string{"ticket": fmt.Sprintf("premium-watch-%d", time.Now().UnixNano())},
		map[string]interface{}{"type": "ticker", "codes": codes},
	})

	f.conn = NewConn(ConnConfig{
		Name: upbitFeedName,
		URL:  cfg.Endpoint,
		Policy: Policy{
			InitialDelay: time.Duration(cfg.RetryDelayMs) * time.Millisecond,
			MaxAttempts:  cfg.MaxAttempts,
		},
		OnOpen: func(ws WSConn) error {
			return ws.WriteMessage(websocket.TextMessage, handshake)
		},
		OnMessage: f.handleMessage,
		OnGiveUp:  onGiveUp,
		Log:       f.log,
		Mon:       mon,
	})
	return f
}

func (f *UpbitFeed) handleMessage(_ int, raw []byte) {
	t, err := ParseUpbitTicker(raw)
	if err != nil {
		if errors.Is(err, ErrNotTicker) {
			return
		}
		f.mon.RecordParseDrop(upbitFeedName)
		f.log.Warn("dropping malformed upbit frame", zap.Error(err))
		return
	}
	f.mon.RecordTick(upbitFeedName)

	ts := time.Now()
	if t.Timestamp > 0 {
		ts = time.UnixMilli(t.Timestamp)
	}
	f.board.ApplyDomestic(UpbitSymbol(t.Code), t.TradePrice,
		t.AccTradeVolume24h, t.SignedChangeRate*100, ts)
}

// Start launches the connection.
func (f *UpbitFeed) Start() { f.conn.Start() }

// Close stops the connection and any pending reconnect.
func (f *UpbitFeed) Close() { f.conn.Close() }

// State returns the connection state.
func (f *UpbitFeed) State() State { return f.conn.State() }
