package cryptoarb

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal tracks completed scan cycles.
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_cryptoarb_scans_total",
		Help: "Total number of cross-exchange scan cycles",
	})

	// OpportunitiesTotal tracks positive-net detections.
	OpportunitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_cryptoarb_opportunities_total",
		Help: "Total number of cross-exchange opportunities detected",
	})

	// TradesTotal tracks simulated executions.
	TradesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_cryptoarb_trades_total",
		Help: "Total number of simulated cross-exchange trades",
	})
)
