package arbitrage

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DetectedTotal tracks arbitrage opportunities the kernel accepted.
	DetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_arb_opportunities_detected_total",
		Help: "Total number of within-market arbitrage opportunities detected",
	})

	// RejectedTotal tracks kernel rejections by reason.
	RejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_arb_opportunities_rejected_total",
			Help: "Total number of candidate markets rejected by the kernel",
		},
		[]string{"reason"},
	)

	// ProfitPctHistogram tracks expected profit percentages of detections.
	ProfitPctHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_engine_arb_opportunity_profit_pct",
		Help:    "Expected profit percent of detected opportunities",
		Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 10, 20, 50},
	})
)
