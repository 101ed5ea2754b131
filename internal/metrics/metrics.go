// Package metrics exposes the Prometheus instrumentation for the trading
// session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors the session driver updates each cycle.
type Metrics struct {
	CyclesTotal      *prometheus.CounterVec
	CycleErrorsTotal *prometheus.CounterVec
	TransitionsTotal *prometheus.CounterVec
	ActivePositions  prometheus.Gauge
	ClosedPnLPercent prometheus.Histogram
	LastPrice        *prometheus.GaugeVec
	LastATR          *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CyclesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailbot",
			Name:      "cycles_total",
			Help:      "Completed evaluation cycles per pair.",
		}, []string{"pair"}),
		CycleErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailbot",
			Name:      "cycle_errors_total",
			Help:      "Evaluation cycles that failed per pair.",
		}, []string{"pair"}),
		TransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "trailbot",
			Name:      "transitions_total",
			Help:      "Position lifecycle transitions per pair and event.",
		}, []string{"pair", "event"}),
		ActivePositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "trailbot",
			Name:      "active_positions",
			Help:      "Number of currently tracked positions.",
		}),
		ClosedPnLPercent: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "trailbot",
			Name:      "closed_pnl_percent",
			Help:      "PnL distribution of closed positions, percent of entry.",
			Buckets:   []float64{-10, -5, -2, -1, -0.5, 0, 0.5, 1, 2, 5, 10},
		}),
		LastPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trailbot",
			Name:      "last_price",
			Help:      "Last observed price per pair.",
		}, []string{"pair"}),
		LastATR: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "trailbot",
			Name:      "last_atr",
			Help:      "Last computed ATR per pair.",
		}, []string{"pair"}),
	}
}
