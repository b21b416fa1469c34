package fetcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal tracks completed HTTP requests by status class.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signal_engine_fetcher_requests_total",
			Help: "Total number of HTTP requests by status class",
		},
		[]string{"status"},
	)

	// RetriesTotal tracks transient-error retries.
	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_fetcher_retries_total",
		Help: "Total number of HTTP request retries after transient errors",
	})

	// RateLimitedTotal tracks 429 responses.
	RateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "signal_engine_fetcher_rate_limited_total",
		Help: "Total number of HTTP 429 responses",
	})
)
