package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PromMetrics exposes the live session gauges/counters the status surface
// needs for external scraping, complementing MetricsCollector's
// database-backed history with a process-local /metrics endpoint.
type PromMetrics struct {
	TickDuration   prometheus.Histogram
	AccountBalance prometheus.Gauge
	Equity         prometheus.Gauge
	OpenPositions  prometheus.Gauge
	TradesClosed   *prometheus.CounterVec
}

// NewPromMetrics registers the gauges/counters against the default
// registry. Call once at process startup.
func NewPromMetrics() *PromMetrics {
	return &PromMetrics{
		TickDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "paperengine",
			Name:      "tick_duration_seconds",
			Help:      "Duration of one orchestrator tick.",
			Buckets:   prometheus.DefBuckets,
		}),
		AccountBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperengine",
			Name:      "account_balance_usd",
			Help:      "Current account balance.",
		}),
		Equity: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperengine",
			Name:      "account_equity_usd",
			Help:      "Current balance plus unrealized PnL.",
		}),
		OpenPositions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: "paperengine",
			Name:      "open_positions",
			Help:      "Number of currently open positions.",
		}),
		TradesClosed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paperengine",
			Name:      "trades_closed_total",
			Help:      "Trades closed, by exit reason.",
		}, []string{"exit_reason"}),
	}
}
