// Package api exposes the watcher's HTTP surface: price snapshots, alert
// rule management, alert history, toast draining and push subscription
// registration.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"premium-watch-go/alert"
	"premium-watch-go/dispatch"
	"premium-watch-go/infrastructure/logger"
	"premium-watch-go/internal/engine"
	"premium-watch-go/market"
)

// SubscriptionStore persists registered push subscriptions.
type SubscriptionStore interface {
	SaveSubscription(dispatch.Subscription) error
}

// Server holds the HTTP handlers and their dependencies.
type Server struct {
	board    *market.Board
	registry *alert.Registry
	store    alert.Store
	subs     SubscriptionStore
	toasts   *dispatch.ToastChannel
	sound    *dispatch.SoundChannel
	push     *dispatch.PushForwarder
	eng      *engine.Engine
	log      *logger.Logger

	http *http.Server
}

// Config assembles a Server.
type Config struct {
	Addr     string
	Board    *market.Board
	Registry *alert.Registry
	Store    alert.Store
	Subs     SubscriptionStore
	Toasts   *dispatch.ToastChannel
	Sound    *dispatch.SoundChannel
	Push     *dispatch.PushForwarder
	Engine   *engine.Engine
	Log      *logger.Logger
}

// New builds the server and its route table.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	s := &Server{
		board:    cfg.Board,
		registry: cfg.Registry,
		store:    cfg.Store,
		subs:     cfg.Subs,
		toasts:   cfg.Toasts,
		sound:    cfg.Sound,
		push:     cfg.Push,
		eng:      cfg.Engine,
		log:      log.Named("api"),
	}
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the gin engine; exported for httptest use.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog())

	r.GET("/healthz", s.health)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/prices", s.prices)
		v1.GET("/prices/:symbol", s.price)
		v1.GET("/alerts", s.listAlerts)
		v1.POST("/alerts", s.createAlert)
		v1.DELETE("/alerts/:id", s.deleteAlert)
		v1.GET("/alerts/history", s.history)
		v1.DELETE("/alerts/history", s.clearHistory)
		v1.GET("/toasts", s.listToasts)
		v1.POST("/toasts/dismiss", s.dismissToast)
		v1.POST("/interaction", s.interaction)
		v1.POST("/push/subscribe", s.subscribe)
	}
	return r
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}

// Start begins serving; blocks until shutdown or listen failure.
func (s *Server) Start() error {
	s.log.Info("api listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func errBody(msg string) gin.H {
	return gin.H{"error": msg}
}

func (s *Server) health(c *gin.Context) {
	h := s.eng.Health()
	code := http.StatusOK
	if !h.Healthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, h)
}

func (s *Server) prices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"rate":  s.board.Rate(),
		"ticks": s.board.Snapshot(),
	})
}

func (s *Server) price(c *gin.Context) {
	symbol := c.Param("symbol")
	tick, ok := s.board.Get(symbol)
	if !ok {
		c.JSON(http.StatusNotFound, errBody("unknown symbol "+symbol))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"tick":        tick,
		"pricesKnown": tick.PricesKnown(),
	})
}

func (s *Server) listAlerts(c *gin.Context) {
	rules := s.registry.Rules()
	if rules == nil {
		rules = []alert.Rule{}
	}
	c.JSON(http.StatusOK, rules)
}

func (s *Server) createAlert(c *gin.Context) {
	var rule alert.Rule
	if err := c.ShouldBindJSON(&rule); err != nil {
		c.JSON(http.StatusBadRequest, errBody(err.Error()))
		return
	}
	created, err := s.registry.Add(rule)
	if err != nil {
		c.JSON(http.StatusBadRequest, errBody(err.Error()))
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) deleteAlert(c *gin.Context) {
	// Removing an unknown ID is deliberately not an error.
	s.registry.Remove(c.Param("id"))
	c.Status(http.StatusNoContent)
}

func (s *Server) history(c *gin.Context) {
	entries, err := s.store.LoadHistory()
	if err != nil {
		s.log.Error("load history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errBody("history unavailable"))
		return
	}
	if entries == nil {
		entries = []alert.HistoryEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) clearHistory(c *gin.Context) {
	if err := s.store.ClearHistory(); err != nil {
		s.log.Error("clear history failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errBody("history unavailable"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listToasts(c *gin.Context) {
	toasts := s.toasts.Pending()
	if toasts == nil {
		toasts = []dispatch.Toast{}
	}
	c.JSON(http.StatusOK, toasts)
}

func (s *Server) dismissToast(c *gin.Context) {
	var t dispatch.Toast
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, errBody(err.Error()))
		return
	}
	s.toasts.Dismiss(t)
	c.Status(http.StatusNoContent)
}

// interaction records the first user interaction, unlocking alert audio.
func (s *Server) interaction(c *gin.Context) {
	s.sound.MarkInteracted()
	c.Status(http.StatusNoContent)
}

func (s *Server) subscribe(c *gin.Context) {
	var sub dispatch.Subscription
	if err := c.ShouldBindJSON(&sub); err != nil {
		c.JSON(http.StatusBadRequest, errBody(err.Error()))
		return
	}
	if sub.Endpoint == "" {
		c.JSON(http.StatusBadRequest, errBody("subscription endpoint is required"))
		return
	}
	if s.subs != nil {
		if err := s.subs.SaveSubscription(sub); err != nil {
			s.log.Error("save subscription failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, errBody("subscription not stored"))
			return
		}
	}
	// Upstream forwarding is fire-and-forget: failures are logged, the client
	// still gets its acknowledgment.
	if s.push != nil {
		s.push.ForwardAsync(sub)
	}
	c.JSON(http.StatusAccepted, gin.H{"ok": true})
}
