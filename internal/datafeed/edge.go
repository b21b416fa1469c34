package datafeed

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"go.uber.org/zap"
)

const (
	// defaultPriceMoveThreshold is the price delta that counts as the
	// market having repriced.
	defaultPriceMoveThreshold = 0.02

	// maxTrackWindow gives up on an edge that never moves.
	maxTrackWindow = 120 * time.Second

	// statsEmitInterval caps how often summary stats go on the bus.
	statsEmitInterval = 60 * time.Second

	measurementsCap = 200
)

// PendingEdge is an opportunity awaiting the market's price response.
type PendingEdge struct {
	EventID          string
	EventType        string
	EventTS          time.Time
	TokenID          string
	PriceAtDetection float64
	Direction        string
	FixtureID        int64
	FeedSource       string
}

// EdgeMeasurement records how long the market took to reprice after our
// detection.
type EdgeMeasurement struct {
	EventID          string  `json:"event_id"`
	EventType        string  `json:"event_type"`
	LatencySeconds   float64 `json:"latency_s"`
	PriceAtDetection float64 `json:"price_at_detection"`
	PriceAfterMove   float64 `json:"price_after_move"`
	PriceDelta       float64 `json:"price_delta"`
	DetectedAt       int64   `json:"detected_at"`
	PriceMovedAt     int64   `json:"price_moved_at"`
	FeedSource       string  `json:"feed_source"`
}

// EdgeStats summarizes resolved measurements.
type EdgeStats struct {
	TotalTracked int     `json:"total_tracked"`
	AvgLatencyS  float64 `json:"avg_latency_s"`
	P50LatencyS  float64 `json:"p50_latency_s"`
	P95LatencyS  float64 `json:"p95_latency_s"`
}

// EdgeTracker measures detection-to-price-move latency by polling pending
// token prices in one batched request per cycle.
type EdgeTracker struct {
	client        *polymarket.Client
	bus           *bus.Bus
	logger        *zap.Logger
	moveThreshold float64

	mu            sync.Mutex
	pending       map[string]*PendingEdge
	measurements  []EdgeMeasurement
	lastStatsEmit time.Time
}

// NewEdgeTracker creates a tracker. moveThreshold <= 0 uses the default
// 2-cent threshold.
func NewEdgeTracker(client *polymarket.Client, eventBus *bus.Bus, moveThreshold float64, logger *zap.Logger) *EdgeTracker {
	if moveThreshold <= 0 {
		moveThreshold = defaultPriceMoveThreshold
	}

	return &EdgeTracker{
		client:        client,
		bus:           eventBus,
		logger:        logger,
		moveThreshold: moveThreshold,
		pending:       make(map[string]*PendingEdge),
		lastStatsEmit: time.Now(),
	}
}

// Track registers an opportunity for latency measurement. Duplicate event
// keys are ignored.
func (e *EdgeTracker) Track(evt *LiveEvent, opp *Opportunity) {
	eventID := fmt.Sprintf("%d_%s_%d", evt.FixtureID, evt.EventType, evt.Minute)

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, tracking := e.pending[eventID]; tracking {
		return
	}
	e.pending[eventID] = &PendingEdge{
		EventID:          eventID,
		EventType:        evt.EventType,
		EventTS:          evt.DetectedAt,
		TokenID:          opp.TokenID,
		PriceAtDetection: opp.MarketPrice,
		Direction:        opp.Outcome,
		FixtureID:        evt.FixtureID,
		FeedSource:       evt.Source,
	}
	PendingEdgesGauge.Set(float64(len(e.pending)))
}

// PollPending checks all pending edges against current prices: expire those
// past the window, resolve those that moved at least the threshold, and
// emit stats at most once a minute.
func (e *EdgeTracker) PollPending(ctx context.Context) {
	now := time.Now()

	e.mu.Lock()
	for id, pending := range e.pending {
		if now.Sub(pending.EventTS) > maxTrackWindow {
			delete(e.pending, id)
		}
	}
	tokenIDs := make([]string, 0, len(e.pending))
	seen := make(map[string]struct{}, len(e.pending))
	for _, pending := range e.pending {
		if _, dup := seen[pending.TokenID]; dup {
			continue
		}
		seen[pending.TokenID] = struct{}{}
		tokenIDs = append(tokenIDs, pending.TokenID)
	}
	e.mu.Unlock()

	if len(tokenIDs) == 0 {
		PendingEdgesGauge.Set(0)
		return
	}

	priceMap := e.fetchPrices(ctx, tokenIDs)
	if priceMap != nil {
		e.resolve(priceMap)
	}

	e.maybeEmitStats()
}

func (e *EdgeTracker) fetchPrices(ctx context.Context, tokenIDs []string) map[string]float64 {
	priceMap := make(map[string]float64)

	for i := 0; i < len(tokenIDs); i += priceBatchSize {
		end := i + priceBatchSize
		if end > len(tokenIDs) {
			end = len(tokenIDs)
		}

		markets, err := e.client.GetMarketsByTokenIDs(ctx, tokenIDs[i:end])
		if err != nil {
			e.logger.Debug("edge-price-poll-failed", zap.Error(err))
			return nil
		}
		for _, mkt := range markets {
			price, ok := marketPrice(&mkt)
			if !ok {
				continue
			}
			for _, tid := range mkt.ClobTokenIDs {
				priceMap[tid] = price
			}
		}
	}

	return priceMap
}

func (e *EdgeTracker) resolve(priceMap map[string]float64) {
	now := time.Now()
	var resolved []EdgeMeasurement

	e.mu.Lock()
	for id, pending := range e.pending {
		current, ok := priceMap[pending.TokenID]
		if !ok {
			continue
		}
		delta := current - pending.PriceAtDetection
		if abs(delta) < e.moveThreshold {
			continue
		}

		m := EdgeMeasurement{
			EventID:          pending.EventID,
			EventType:        pending.EventType,
			LatencySeconds:   now.Sub(pending.EventTS).Seconds(),
			PriceAtDetection: pending.PriceAtDetection,
			PriceAfterMove:   current,
			PriceDelta:       delta,
			DetectedAt:       pending.EventTS.Unix(),
			PriceMovedAt:     now.Unix(),
			FeedSource:       pending.FeedSource,
		}
		e.measurements = append(e.measurements, m)
		if len(e.measurements) > measurementsCap {
			e.measurements = e.measurements[len(e.measurements)-measurementsCap:]
		}
		resolved = append(resolved, m)
		delete(e.pending, id)
	}
	PendingEdgesGauge.Set(float64(len(e.pending)))
	e.mu.Unlock()

	for _, m := range resolved {
		EdgeLatencySeconds.Observe(m.LatencySeconds)
		e.logger.Info("edge-price-moved",
			zap.String("event-type", m.EventType),
			zap.Float64("latency-s", m.LatencySeconds),
			zap.Float64("price-delta", m.PriceDelta),
			zap.String("feed-source", m.FeedSource))
		e.bus.Publish("datafeed_edge_measurement", m)
	}
}

func (e *EdgeTracker) maybeEmitStats() {
	e.mu.Lock()
	due := time.Since(e.lastStatsEmit) >= statsEmitInterval
	if due {
		e.lastStatsEmit = time.Now()
	}
	e.mu.Unlock()

	if !due {
		return
	}

	stats := e.Stats()
	if stats.TotalTracked > 0 {
		e.bus.Publish("datafeed_edge_stats", stats)
	}
}

// Stats summarizes all recorded measurements.
func (e *EdgeTracker) Stats() EdgeStats {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.measurements) == 0 {
		return EdgeStats{}
	}

	latencies := make([]float64, 0, len(e.measurements))
	sum := 0.0
	for _, m := range e.measurements {
		latencies = append(latencies, m.LatencySeconds)
		sum += m.LatencySeconds
	}
	sort.Float64s(latencies)

	n := len(latencies)
	p95Idx := int(float64(n) * 0.95)
	if p95Idx >= n {
		p95Idx = n - 1
	}

	return EdgeStats{
		TotalTracked: n,
		AvgLatencyS:  sum / float64(n),
		P50LatencyS:  latencies[n/2],
		P95LatencyS:  latencies[p95Idx],
	}
}

// Measurements returns a copy of recorded measurements.
func (e *EdgeTracker) Measurements() []EdgeMeasurement {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]EdgeMeasurement, len(e.measurements))
	copy(out, e.measurements)

	return out
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}

	return v
}
