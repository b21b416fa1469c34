package mirror

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollsTotal tracks address polls by result.
	PollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_mirror_polls_total",
			Help: "Total number of address polls by result",
		},
		[]string{"result"},
	)

	// OpenPositionsGauge tracks occupied slots.
	OpenPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_engine_mirror_open_positions",
		Help: "Number of occupied mirror portfolio slots",
	})

	// QueuedTradesGauge tracks the overflow queue length.
	QueuedTradesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_engine_mirror_queued_trades",
		Help: "Number of trades waiting for a free slot",
	})

	// ClosedTradesTotal tracks resolved trades by result.
	ClosedTradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_mirror_closed_trades_total",
			Help: "Total number of closed mirror trades by result",
		},
		[]string{"result"},
	)
)
