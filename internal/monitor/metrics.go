package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScansTotal tracks completed scan cycles.
	ScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_monitor_scans_total",
		Help: "Total number of monitor scan cycles",
	})

	// ScanDurationSeconds tracks pre-screen duration per scan.
	ScanDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "signal_engine_monitor_scan_duration_seconds",
		Help:    "Duration of the market fetch and pre-screen stage",
		Buckets: prometheus.DefBuckets,
	})

	// CandidatesGauge tracks candidates surviving the last pre-screen.
	CandidatesGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "signal_engine_monitor_candidates",
		Help: "Markets that passed the pre-screen in the last scan",
	})
)
