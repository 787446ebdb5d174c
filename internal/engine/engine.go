// Package engine wires the feeds, the price board and the alert evaluator
// into one running pipeline.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/alert"
	"premium-watch-go/config"
	"premium-watch-go/feed"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

// Engine runs the streaming pipeline: feeds write the board, the board
// publishes updates, and every update is evaluated against the alert
// registry.
type Engine struct {
	cfg      config.AppConfig
	board    *market.Board
	registry *alert.Registry
	log      *logger.Logger
	mon      *monitor.Monitor

	upbit    *feed.UpbitFeed
	binance  *feed.BinanceFeed
	fx       *feed.FXFeed
	snapshot *feed.UpbitSnapshot

	upbitDown atomic.Bool
	startedAt time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// New assembles the engine around an existing board and registry.
func New(cfg config.AppConfig, board *market.Board, registry *alert.Registry,
	log *logger.Logger, mon *monitor.Monitor) (*Engine, error) {

	e := &Engine{
		cfg:      cfg,
		board:    board,
		registry: registry,
		log:      log.Named("engine"),
		mon:      mon,
	}

	e.upbit = feed.NewUpbitFeed(cfg.Feeds.Upbit, cfg.Symbols, board, log, mon, func(cause error) {
		// Terminal by policy: the domestic feed stops after its attempt
		// budget. Operators restart the process to resume.
		e.upbitDown.Store(true)
		e.log.Error("domestic feed gave up, restart required to resume",
			zap.Error(cause))
	})
	e.binance = feed.NewBinanceFeed(cfg.Feeds.Binance, cfg.Symbols, board, log, mon)

	fx, err := feed.NewFXFeed(cfg.FX, board, log, mon)
	if err != nil {
		return nil, err
	}
	e.fx = fx
	e.snapshot = &feed.UpbitSnapshot{BaseURL: cfg.Feeds.Upbit.RestEndpoint}
	return e, nil
}

// Start fetches the initial domestic snapshot, launches every feed, and
// starts the evaluation loop.
func (e *Engine) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.startedAt = time.Now()

	updates := e.board.Updates()
	e.wg.Add(1)
	go e.evalLoop(ctx, updates)

	// Snapshot first so the board has prices before the streams settle.
	go func() {
		sctx, scancel := context.WithTimeout(ctx, 15*time.Second)
		defer scancel()
		if err := e.snapshot.Load(sctx, e.cfg.Symbols, e.board, e.log); err != nil {
			e.log.Warn("initial domestic snapshot failed", zap.Error(err))
		}
	}()

	e.upbit.Start()
	e.binance.Start()
	e.fx.Start()
	e.log.Info("engine started",
		zap.Strings("symbols", e.cfg.Symbols),
		zap.Float64("fx_rate", e.board.Rate()))
}

// Stop tears the feeds down and drains the evaluation loop.
func (e *Engine) Stop() {
	e.once.Do(func() {
		e.upbit.Close()
		e.binance.Close()
		e.fx.Close()
		if e.cancel != nil {
			e.cancel()
		}
		e.wg.Wait()
		e.log.Info("engine stopped")
	})
}

func (e *Engine) evalLoop(ctx context.Context, updates <-chan market.Tick) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-updates:
			if !ok {
				return
			}
			e.registry.Evaluate([]market.Tick{t})
		}
	}
}

// Health summarizes feed health for the API.
type Health struct {
	Upbit     string  `json:"upbit"`
	Binance   string  `json:"binance"`
	FX        string  `json:"fx"`
	FXRate    float64 `json:"fxRate"`
	UptimeSec float64 `json:"uptimeSec"`
	Healthy   bool    `json:"healthy"`
}

// Health reports the current feed states. The service is unhealthy once the
// domestic feed has given up.
func (e *Engine) Health() Health {
	h := Health{
		Upbit:   e.upbit.State().String(),
		Binance: e.binance.State().String(),
		FX:      e.fx.State().String(),
		FXRate:  e.board.Rate(),
	}
	if !e.startedAt.IsZero() {
		h.UptimeSec = time.Since(e.startedAt).Seconds()
	}
	h.Healthy = !e.upbitDown.Load() && e.binance.State() != feed.StateClosedGiveUp
	return h
}
