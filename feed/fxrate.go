package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"premium-watch-go/config"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

const fxFeedName = "fxrate"

// fxCurrency is the only pair the watcher consumes.
const fxCurrency = "USD/KRW"

// ErrNotUSDKRW marks rate messages for other pairs; they are skipped without
// counting as parse failures.
var ErrNotUSDKRW = errors.New("not a USD/KRW rate")

type fxMessage struct {
	Currency string      `json:"currency"`
	Rate     json.Number `json:"rate"`
}

// ParseFXRate decodes one rate message. The rate may arrive as a JSON number
// or string.
func ParseFXRate(raw []byte) (float64, error) {
	var msg fxMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return 0, fmt.Errorf("decode fx message: %w", err)
	}
	if msg.Currency != fxCurrency {
		return 0, ErrNotUSDKRW
	}
	rate, err := msg.Rate.Float64()
	if err != nil {
		return 0, fmt.Errorf("fx rate %q: %w", msg.Rate, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("fx rate %v out of range", rate)
	}
	return rate, nil
}

// FXFeed keeps the USD/KRW rate current. The websocket stream is the primary
// source; a cron-scheduled REST fetch fills in when the stream is absent or
// quiet. Both sources are optional — without either, the board keeps the
// configured default rate.
type FXFeed struct {
	conn    *Conn
	cron    *cron.Cron
	board   *market.Board
	log     *logger.Logger
	mon     *monitor.Monitor
	restURL string
	client  *http.Client
}

// NewFXFeed wires the configured sources.
func NewFXFeed(cfg config.FXConfig, board *market.Board, log *logger.Logger, mon *monitor.Monitor) (*FXFeed, error) {
	f := &FXFeed{
		board:   board,
		log:     log.Named(fxFeedName),
		mon:     mon,
		restURL: cfg.RestURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}

	if cfg.WSEndpoint != "" {
		f.conn = NewConn(ConnConfig{
			Name: fxFeedName,
			URL:  cfg.WSEndpoint,
			Policy: Policy{
				InitialDelay: time.Second,
				MaxDelay:     30 * time.Second,
				Exponential:  true,
			},
			OnMessage: f.handleMessage,
			Log:       f.log,
			Mon:       mon,
		})
	}

	if cfg.RestURL != "" && cfg.RefreshCron != "" {
		f.cron = cron.New()
		if _, err := f.cron.AddFunc(cfg.RefreshCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := f.Refresh(ctx); err != nil {
				f.log.Warn("fx refresh failed", zap.Error(err))
			}
		}); err != nil {
			return nil, fmt.Errorf("fx refresh cron %q: %w", cfg.RefreshCron, err)
		}
	}
	return f, nil
}

func (f *FXFeed) handleMessage(_ int, raw []byte) {
	rate, err := ParseFXRate(raw)
	if err != nil {
		if errors.Is(err, ErrNotUSDKRW) {
			return
		}
		f.mon.RecordParseDrop(fxFeedName)
		f.log.Warn("dropping malformed fx message", zap.Error(err))
		return
	}
	f.mon.RecordTick(fxFeedName)
	f.board.SetRate(rate)
}

// Refresh fetches the rate once over REST and applies it.
func (f *FXFeed) Refresh(ctx context.Context) error {
	if f.restURL == "" {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.restURL, nil)
	if err != nil {
		return fmt.Errorf("build fx request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch fx rate: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fx rate status %d", resp.StatusCode)
	}

	var msg struct {
		Rate json.Number `json:"rate"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return fmt.Errorf("decode fx rate: %w", err)
	}
	rate, err := msg.Rate.Float64()
	if err != nil || rate <= 0 {
		return fmt.Errorf("fx rate %q unusable", msg.Rate)
	}
	f.board.SetRate(rate)
	f.log.Info("fx rate refreshed", zap.Float64("rate", rate))
	return nil
}

// Start launches the configured sources.
func (f *FXFeed) Start() {
	if f.conn != nil {
		f.conn.Start()
	}
	if f.cron != nil {
		f.cron.Start()
	}
	if f.restURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := f.Refresh(ctx); err != nil {
				f.log.Warn("initial fx refresh failed", zap.Error(err))
			}
		}()
	}
}

// Close stops both sources.
func (f *FXFeed) Close() {
	if f.conn != nil {
		f.conn.Close()
	}
	if f.cron != nil {
		f.cron.Stop()
	}
}

// State reports the stream state; without a stream the feed is nominally
// open (REST/default only).
func (f *FXFeed) State() State {
	if f.conn == nil {
		return StateOpen
	}
	return f.conn.State()
}
