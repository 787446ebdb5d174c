// Package monitor provides Prometheus metrics for the premium watcher.
package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Monitor collects the service's Prometheus metrics on its own registry.
// All record methods are safe on a nil receiver so optional wiring stays
// uncluttered.
type Monitor struct {
	registry *prometheus.Registry

	// feed metrics
	ticksTotal    *prometheus.CounterVec
	parseDrops    *prometheus.CounterVec
	wsConnects    *prometheus.CounterVec
	wsDisconnects *prometheus.CounterVec
	wsGiveUps     *prometheus.CounterVec
	feedState     *prometheus.GaugeVec

	// market metrics
	domesticPrice *prometheus.GaugeVec
	foreignPrice  *prometheus.GaugeVec
	premiumPct    *prometheus.GaugeVec
	fxRate        prometheus.Gauge

	// alert metrics
	rulesActive      prometheus.Gauge
	rulesAdded       prometheus.Counter
	rulesRemoved     prometheus.Counter
	alertsFired      prometheus.Counter
	dispatchFailures *prometheus.CounterVec
}

// Config controls metric naming.
type Config struct {
	Namespace string
	Subsystem string
}

// DefaultConfig returns the default naming.
func DefaultConfig() Config {
	return Config{
		Namespace: "pw",
		Subsystem: "watch",
	}
}

// New creates a Monitor instance.
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	m := &Monitor{
		registry: reg,

		ticksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ticks_total",
			Help:      "Raw ticks accepted per feed",
		}, []string{"feed"}),
		parseDrops: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "parse_drops_total",
			Help:      "Malformed payloads dropped per feed",
		}, []string{"feed"}),
		wsConnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_connects_total",
			Help:      "WebSocket connections established per feed",
		}, []string{"feed"}),
		wsDisconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_disconnects_total",
			Help:      "WebSocket disconnects per feed",
		}, []string{"feed"}),
		wsGiveUps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "ws_giveups_total",
			Help:      "Feeds that exhausted their reconnect budget",
		}, []string{"feed"}),
		feedState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "feed_state",
			Help:      "Feed connection state (0=connecting,1=open,2=retrying,3=gave up)",
		}, []string{"feed"}),

		domesticPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "domestic_price",
			Help:      "Latest domestic price (KRW)",
		}, []string{"symbol"}),
		foreignPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "foreign_price",
			Help:      "Latest foreign price (USDT)",
		}, []string{"symbol"}),
		premiumPct: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "premium_pct",
			Help:      "Cross-market premium percentage",
		}, []string{"symbol"}),
		fxRate: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fx_rate",
			Help:      "Current USD/KRW exchange rate",
		}),

		rulesActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "alert_rules_active",
			Help:      "Active alert rules",
		}),
		rulesAdded: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "alert_rules_added_total",
			Help:      "Alert rules added",
		}),
		rulesRemoved: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "alert_rules_removed_total",
			Help:      "Alert rules removed by user action",
		}),
		alertsFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "alerts_fired_total",
			Help:      "Alert rules fired",
		}),
		dispatchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "dispatch_failures_total",
			Help:      "Dispatch channel failures",
		}, []string{"channel"}),
	}

	return m
}

func (m *Monitor) RecordTick(feed string) {
	if m == nil {
		return
	}
	m.ticksTotal.WithLabelValues(feed).Inc()
}

func (m *Monitor) RecordParseDrop(feed string) {
	if m == nil {
		return
	}
	m.parseDrops.WithLabelValues(feed).Inc()
}

func (m *Monitor) RecordWSConnect(feed string) {
	if m == nil {
		return
	}
	m.wsConnects.WithLabelValues(feed).Inc()
}

func (m *Monitor) RecordWSDisconnect(feed string) {
	if m == nil {
		return
	}
	m.wsDisconnects.WithLabelValues(feed).Inc()
}

func (m *Monitor) RecordWSGiveUp(feed string) {
	if m == nil {
		return
	}
	m.wsGiveUps.WithLabelValues(feed).Inc()
}

func (m *Monitor) UpdateFeedState(feed string, state int) {
	if m == nil {
		return
	}
	m.feedState.WithLabelValues(feed).Set(float64(state))
}

func (m *Monitor) UpdatePrices(symbol string, domestic, foreign, premium float64) {
	if m == nil {
		return
	}
	m.domesticPrice.WithLabelValues(symbol).Set(domestic)
	m.foreignPrice.WithLabelValues(symbol).Set(foreign)
	m.premiumPct.WithLabelValues(symbol).Set(premium)
}

func (m *Monitor) UpdateFXRate(rate float64) {
	if m == nil {
		return
	}
	m.fxRate.Set(rate)
}

func (m *Monitor) UpdateActiveRules(n int) {
	if m == nil {
		return
	}
	m.rulesActive.Set(float64(n))
}

func (m *Monitor) RecordRuleAdded() {
	if m == nil {
		return
	}
	m.rulesAdded.Inc()
}

func (m *Monitor) RecordRuleRemoved() {
	if m == nil {
		return
	}
	m.rulesRemoved.Inc()
}

func (m *Monitor) RecordAlertFired() {
	if m == nil {
		return
	}
	m.alertsFired.Inc()
}

func (m *Monitor) RecordDispatchFailure(channel string) {
	if m == nil {
		return
	}
	m.dispatchFailures.WithLabelValues(channel).Inc()
}

// Handler returns the HTTP handler exposing the registry.
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the prometheus registry.
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
