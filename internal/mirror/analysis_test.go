package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/cache"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestAnalyzer(t *testing.T, handler http.Handler) (*Analyzer, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.Config{
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
		Logger:    zap.NewNop(),
	})
	client := polymarket.NewClient(polymarket.Config{
		GammaHost: srv.URL,
		ClobHost:  srv.URL,
		DataHost:  srv.URL,
		Fetcher:   f,
		Logger:    zap.NewNop(),
	})

	c, err := cache.NewRistrettoCache(&cache.RistrettoConfig{
		NumCounters: 1000,
		MaxCost:     100,
		BufferItems: 64,
		Logger:      zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)

	return NewAnalyzer(client, c, t.TempDir(), zap.NewNop()), &calls
}

func analysisHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/activity", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"side": "BUY", "title": "Real Madrid vs Barcelona", "price": 0.35, "usdcSize": 100, "timestamp": 1722600000},
			{"side": "BUY", "title": "NBA finals game 7", "price": 0.55, "usdcSize": 200, "timestamp": 1722603600},
			{"side": "SELL", "title": "Bitcoin above 100k", "price": 0.85, "usdcSize": 300, "timestamp": 1722607200},
			{"side": "BUY", "title": "Who wins the election", "price": 0.10, "usdcSize": 400, "timestamp": 1722610800}
		]`))
	})
	mux.HandleFunc("/positions", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"asset": "a1", "curPrice": 0.5}]`))
	})
	return mux
}

func TestAnalyzeComputesProfile(t *testing.T) {
	a, _ := newTestAnalyzer(t, analysisHandler())

	analysis, err := a.Analyze(context.Background(), "0xWhale")
	require.NoError(t, err)

	assert.Equal(t, "0xwhale", analysis.Address)
	assert.Equal(t, 4, analysis.TradeCount)
	assert.Equal(t, 1, analysis.ActivePositions)
	assert.Equal(t, 3, analysis.BuyCount)
	assert.Equal(t, 1, analysis.SellCount)

	assert.Equal(t, 4, analysis.Sizing.Count)
	assert.InDelta(t, 250.0, analysis.Sizing.Mean, 1e-9)
	assert.Equal(t, 100.0, analysis.Sizing.Min)
	assert.Equal(t, 400.0, analysis.Sizing.Max)

	assert.Equal(t, 1, analysis.Categories["Soccer"])
	assert.Equal(t, 1, analysis.Categories["Basketball"])
	assert.Equal(t, 1, analysis.Categories["Crypto"])
	assert.Equal(t, 1, analysis.Categories["Politics"])

	assert.Equal(t, 1, analysis.EntryPrices["<0.20"])
	assert.Equal(t, 1, analysis.EntryPrices["0.20-0.40"])
	assert.Equal(t, 1, analysis.EntryPrices["0.40-0.60"])
	assert.Equal(t, 1, analysis.EntryPrices[">0.80"])
}

func TestAnalyzeServesFromCache(t *testing.T) {
	a, calls := newTestAnalyzer(t, analysisHandler())

	_, err := a.Analyze(context.Background(), "0xwhale")
	require.NoError(t, err)
	first := calls.Load()

	_, err = a.Analyze(context.Background(), "0xwhale")
	require.NoError(t, err)

	// In-process or disk cache must have prevented new fetches.
	assert.Equal(t, first, calls.Load())
}

func TestSizingStatsPercentiles(t *testing.T) {
	stats := sizingStats([]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})

	assert.Equal(t, 10, stats.Count)
	assert.InDelta(t, 55.0, stats.Mean, 1e-9)
	assert.Equal(t, 50.0, stats.Median)
	assert.Equal(t, 30.0, stats.P25)
	assert.Equal(t, 80.0, stats.P75)
	assert.Equal(t, 100.0, stats.P95)
}

func TestCategorizeFallsToOther(t *testing.T) {
	assert.Equal(t, "Other", categorize("Will it rain tomorrow in Paris?"))
	assert.Equal(t, "Soccer", categorize("Premier League: Arsenal to win?"))
}
