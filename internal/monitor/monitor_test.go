package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/internal/arbitrage"
	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/internal/storage"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/polysignal/signal-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func floatPtr(v float64) *float64 { return &v }

func newTestMonitor(t *testing.T, handler http.Handler, onOpp func(*arbitrage.Opportunity)) *Monitor {
	t.Helper()
	srv := httptest.NewServer(handler)
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

	return New(Config{
		Tags: []string{"Soccer"},
		Caps: arbitrage.Caps{
			MaxTradeSizeUSDC:    100,
			MaxRiskPerTradeUSDC: 200,
			MinProfitPct:        0.5,
		},
		ScanInterval: time.Hour,
		Logger:       zap.NewNop(),
	}, client, storage.NewConsoleStorage(zap.NewNop()), bus.New(50, zap.NewNop()), onOpp)
}

func TestScanConfirmsOpportunity(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{
			"conditionId": "c1",
			"question": "Arb here?",
			"clobTokenIds": "[\"y1\",\"n1\"]",
			"outcomes": "[\"Yes\",\"No\"]",
			"bestAsk": 0.48,
			"bestBid": 0.52
		}]`))
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token_id") == "y1" {
			_, _ = w.Write([]byte(`{"asks": [{"price": "0.48", "size": "500"}], "bids": []}`))
			return
		}
		_, _ = w.Write([]byte(`{"asks": [{"price": "0.49", "size": "500"}], "bids": []}`))
	})

	var mu sync.Mutex
	var got []*arbitrage.Opportunity
	m := newTestMonitor(t, mux, func(opp *arbitrage.Opportunity) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, opp)
	})

	m.scan(context.Background())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	opp := got[0]
	assert.NotEmpty(t, opp.ID)
	assert.False(t, opp.DetectedAt.IsZero())
	assert.InDelta(t, 97.0, opp.CombinedPct, 1e-9)
	assert.Equal(t, "y1", opp.YesTokenID)
	assert.Equal(t, "n1", opp.NoTokenID)
}

func TestScanBookRefutesPrescreen(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/markets", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{
			"conditionId": "c1",
			"question": "Looks cheap but is not",
			"clobTokenIds": "[\"y1\",\"n1\"]",
			"outcomes": "[\"Yes\",\"No\"]",
			"bestAsk": 0.48,
			"bestBid": 0.52
		}]`))
	})
	mux.HandleFunc("/book", func(w http.ResponseWriter, r *http.Request) {
		// Both real asks at 0.52: combined 1.04 — no arb.
		_, _ = w.Write([]byte(`{"asks": [{"price": "0.52", "size": "500"}], "bids": []}`))
	})

	called := false
	m := newTestMonitor(t, mux, func(*arbitrage.Opportunity) { called = true })

	m.scan(context.Background())
	assert.False(t, called)
}

func TestPrescreen(t *testing.T) {
	m := newTestMonitor(t, http.NewServeMux(), nil)

	tests := []struct {
		name   string
		market types.Market
		pass   bool
	}{
		{
			name:   "passes-below-threshold",
			market: types.Market{BestAsk: floatPtr(0.48), BestBid: floatPtr(0.54)},
			pass:   true, // 0.48 + 0.46 = 0.94 < 1.015
		},
		{
			name:   "fails-above-threshold",
			market: types.Market{BestAsk: floatPtr(0.60), BestBid: floatPtr(0.55)},
			pass:   false, // 0.60 + 0.45 = 1.05
		},
		{
			name:   "missing-prices-pass-by-default",
			market: types.Market{},
			pass:   true,
		},
		{
			name:   "degenerate-prices-fail",
			market: types.Market{BestAsk: floatPtr(0.0), BestBid: floatPtr(0.5)},
			pass:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.pass, m.prescreen(&tt.market))
		})
	}
}
