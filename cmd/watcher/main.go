package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"syscall"
	"time"

	"go.uber.org/zap"

	"premium-watch-go/alert"
	"premium-watch-go/api"
	"premium-watch-go/config"
	"premium-watch-go/dispatch"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/internal/engine"
	"premium-watch-go/internal/storage"
	"premium-watch-go/market"
	"premium-watch-go/monitor"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	apiAddr := flag.String("apiAddr", "", "HTTP API listen address, overrides config")
	metricsAddr := flag.String("metricsAddr", ":9100", "Prometheus metrics listen address, empty disables")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if *apiAddr != "" {
		cfg.API.Addr = *apiAddr
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = *metricsAddr
	}

	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer lg.Close()

	mon := monitor.New(monitor.DefaultConfig())
	serveMetrics(cfg.Metrics.Addr, mon, lg)

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		lg.Fatal("open storage failed", zap.Error(err))
	}
	defer store.Close()

	board := market.NewBoard(cfg.Symbols, cfg.FX.DefaultRate, market.NewPublisher(), mon)

	toasts := dispatch.NewToastChannel()
	sound := dispatch.NewSoundChannel(dispatch.NewLogPlayer(lg))
	disp := dispatch.New(lg, mon,
		dispatch.NewHistoryChannel(store),
		toasts,
		dispatch.NewNotifyChannel(dispatch.NewLogNotifier(lg, dispatch.PermissionDefault)),
		sound,
	)

	registry, err := alert.NewRegistry(board, store, disp, lg, mon)
	if err != nil {
		lg.Fatal("init alert registry failed", zap.Error(err))
	}

	eng, err := engine.New(cfg, board, registry, lg, mon)
	if err != nil {
		lg.Fatal("init engine failed", zap.Error(err))
	}
	eng.Start()
	defer eng.Stop()

	srv := api.New(api.Config{
		Addr:     cfg.API.Addr,
		Board:    board,
		Registry: registry,
		Store:    store,
		Subs:     store,
		Toasts:   toasts,
		Sound:    sound,
		Push:     dispatch.NewPushForwarder(cfg.Push.Endpoint, lg),
		Engine:   eng,
		Log:      lg,
	})
	go func() {
		if err := srv.Start(); err != nil {
			lg.Fatal("api server failed", zap.Error(err))
		}
	}()

	// Config changes are detected live. The default FX rate is applied in
	// place when no live FX source is configured; feed and symbol changes
	// need a restart, which the log line tells the operator.
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go func() {
		w := config.Watcher{Path: *cfgPath, Cooldown: 5 * time.Second}
		err := w.Start(watchCtx, func(next config.AppConfig) {
			if reflect.DeepEqual(next, cfg) {
				return
			}
			if next.FX.DefaultRate != cfg.FX.DefaultRate &&
				cfg.FX.WSEndpoint == "" && cfg.FX.RestURL == "" {
				board.SetRate(next.FX.DefaultRate)
				lg.Info("default fx rate reloaded",
					zap.Float64("rate", next.FX.DefaultRate))
			}
			if !reflect.DeepEqual(next.Symbols, cfg.Symbols) ||
				!reflect.DeepEqual(next.Feeds, cfg.Feeds) {
				lg.Warn("feed configuration changed, restart to apply",
					zap.Strings("symbols", next.Symbols))
			}
			cfg = next
		})
		if err != nil && watchCtx.Err() == nil {
			lg.Warn("config watcher stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Warn("api shutdown failed", zap.Error(err))
	}
}

func serveMetrics(addr string, mon *monitor.Monitor, lg *logger.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", mon.Handler())
	go func() {
		lg.Info("metrics listening", zap.String("addr", addr))
		if err := http.ListenAndServe(addr, mux); err != nil {
			lg.Warn("metrics server failed", zap.Error(err))
		}
	}()
}
