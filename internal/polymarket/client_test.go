package polymarket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/polysignal/signal-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := fetcher.New(fetcher.Config{
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
		Logger:    zap.NewNop(),
	})

	return NewClient(Config{
		GammaHost: srv.URL,
		ClobHost:  srv.URL,
		DataHost:  srv.URL,
		Fetcher:   f,
		Logger:    zap.NewNop(),
	}), srv
}

func TestGetSportsMarketsDedup(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("active"))
		// Same market for every tag — must come back once.
		_, _ = w.Write([]byte(`[
			{"conditionId": "c1", "question": "Q1"},
			{"conditionId": "c2", "question": "Q2"}
		]`))
	}))

	markets := client.GetSportsMarkets(context.Background(), []string{"NBA", "Soccer"})
	require.Len(t, markets, 2)
	assert.Equal(t, "c1", markets[0].ConditionID)
}

func TestGetOrderBook(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "tok1", r.URL.Query().Get("token_id"))
		_, _ = w.Write([]byte(`{
			"asks": [{"price": "0.52", "size": "100"}, {"price": "0.48", "size": "30"}],
			"bids": [{"price": "0.45", "size": "50"}]
		}`))
	}))

	book, err := client.GetOrderBook(context.Background(), "tok1")
	require.NoError(t, err)

	best, ok := book.BestAsk()
	require.True(t, ok)
	assert.Equal(t, 0.48, best)
}

func TestGetPositionsBareList(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "0.01", r.URL.Query().Get("sizeThreshold"))
		assert.Equal(t, "false", r.URL.Query().Get("redeemable"))
		assert.Equal(t, "500", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"asset": "a1", "title": "T1", "curPrice": 0.4}]`))
	}))

	positions, err := client.GetPositions(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "a1", positions[0].Asset)
}

func TestGetPositionsEnvelope(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"positions": [{"asset": "a2", "curPrice": 0.7}]}`))
	}))

	positions, err := client.GetPositions(context.Background(), "0xabc")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "a2", positions[0].Asset)
}

func TestGetPositionsRateLimited(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := client.GetPositions(context.Background(), "0xabc")
	require.Error(t, err)
	assert.True(t, types.IsRateLimited(err))
}

func TestGetActivityFallsBackToTrades(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/activity" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		require.Equal(t, "/trades", r.URL.Path)
		_, _ = w.Write([]byte(`{"trades": [{"title": "T", "usdcSize": 120.5}]}`))
	}))

	activities := client.GetActivity(context.Background(), "0xabc", 500)
	require.Len(t, activities, 1)
	assert.Equal(t, 120.5, activities[0].USDCSize)
}
