package datafeed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FeedEventsTotal tracks new events per feed source.
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_datafeed_events_total",
			Help: "Total number of new live events by feed source",
		},
		[]string{"source"},
	)

	// DedupSuppressedTotal tracks events suppressed as cross-feed
	// duplicates.
	DedupSuppressedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_datafeed_dedup_suppressed_total",
		Help: "Total number of events suppressed by the dedup window",
	})

	// OpportunitiesTotal tracks detected mispricings.
	OpportunitiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_datafeed_opportunities_total",
		Help: "Total number of datafeed opportunities detected",
	})

	// OpenPositionsGauge tracks occupied slots.
	OpenPositionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_engine_datafeed_open_positions",
		Help: "Number of occupied datafeed portfolio slots",
	})

	// ClosedTradesTotal tracks resolved trades by result.
	ClosedTradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_datafeed_closed_trades_total",
			Help: "Total number of closed datafeed trades by result",
		},
		[]string{"result"},
	)

	// PendingEdgesGauge tracks edges awaiting a price move.
	PendingEdgesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_engine_datafeed_pending_edges",
		Help: "Number of edges currently being tracked",
	})

	// EdgeLatencySeconds tracks detection-to-reprice latency.
	EdgeLatencySeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_engine_datafeed_edge_latency_seconds",
		Help:    "Latency from event detection to market price move",
		Buckets: []float64{1, 3, 5, 10, 20, 30, 60, 90, 120},
	})
)
