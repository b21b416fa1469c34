package datafeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/cache"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestMatcher(t *testing.T, marketsJSON string) *Matcher {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(marketsJSON))
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

	return NewMatcher(client, c, zap.NewNop())
}

func TestClassifyMarket(t *testing.T) {
	tests := []struct {
		question string
		kind     MarketKind
		line     float64
	}{
		{"Arsenal vs Chelsea O/U 2.5", KindOverUnder, 2.5},
		{"Barcelona ou 3.0 goals", KindOverUnder, 3.0},
		{"Will both teams score?", KindBothScore, 0},
		{"Both teams to score: Madrid derby", KindBothScore, 0},
		{"Will Arsenal beat Chelsea?", KindGameWinner, 0},
	}

	for _, tt := range tests {
		t.Run(tt.question, func(t *testing.T) {
			assert.Equal(t, tt.kind, ClassifyMarket(tt.question))
			assert.Equal(t, tt.line, parseOULine(tt.question))
		})
	}
}

func TestSequenceRatio(t *testing.T) {
	assert.Equal(t, 1.0, sequenceRatio("arsenal", "arsenal"))
	assert.Greater(t, sequenceRatio("will arsenal win", "arsenal"), 0.5)
	assert.Less(t, sequenceRatio("zzzz", "arsenal"), 0.3)
}

func TestFindMarketFromCatalogue(t *testing.T) {
	m := newTestMatcher(t, `[
		{
			"conditionId": "c1",
			"question": "Will Arsenal beat Chelsea?",
			"active": true,
			"clobTokenIds": "[\"y1\",\"n1\"]",
			"outcomes": "[\"Yes\",\"No\"]",
			"bestAsk": 0.55
		},
		{
			"conditionId": "c2",
			"question": "Will Bayern beat Dortmund?",
			"active": true,
			"clobTokenIds": "[\"y2\",\"n2\"]",
			"outcomes": "[\"Yes\",\"No\"]",
			"bestAsk": 0.45
		}
	]`)

	evt := &LiveEvent{HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
	market, ok := m.FindMarket(context.Background(), evt, nil)
	require.True(t, ok)
	assert.Equal(t, "c1", market.MarketID)
	assert.Equal(t, KindGameWinner, market.Kind)
	assert.Equal(t, "y1", market.TokenID)
	assert.Equal(t, "n1", market.TokenIDNo)
	assert.Equal(t, 0.55, market.CurrentPrice)
}

func TestFindMarketNoMatch(t *testing.T) {
	m := newTestMatcher(t, `[
		{
			"conditionId": "c1",
			"question": "Will the senate pass the bill?",
			"clobTokenIds": "[\"y1\",\"n1\"]",
			"outcomes": "[\"Yes\",\"No\"]",
			"bestAsk": 0.55
		}
	]`)

	evt := &LiveEvent{HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
	_, ok := m.FindMarket(context.Background(), evt, nil)
	assert.False(t, ok)
}

func TestFindMarketPrefersReferencePositions(t *testing.T) {
	// The catalogue is empty; the reference position must match on its own.
	m := newTestMatcher(t, `[]`)

	refs := []RefPosition{{
		Question: "Will Arsenal beat Chelsea?",
		TokenID:  "ref-tok",
		Price:    0.61,
	}}

	evt := &LiveEvent{HomeTeam: "Arsenal", AwayTeam: "Chelsea"}
	market, ok := m.FindMarket(context.Background(), evt, refs)
	require.True(t, ok)
	assert.Equal(t, "ref-tok", market.TokenID)
	assert.Equal(t, 0.61, market.CurrentPrice)
}

func TestNormalizeTeamAbbreviations(t *testing.T) {
	assert.Equal(t, "manchester united", normalizeTeam("Man Utd"))
	assert.Equal(t, "tottenham", normalizeTeam("Spurs"))
	assert.Equal(t, "arsenal", normalizeTeam(" Arsenal "))
}
