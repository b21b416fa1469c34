package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestFetcher() *Fetcher {
	return New(Config{
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
		Logger:    zap.NewNop(),
	})
}

func TestGetJSONDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("live"))
		_, _ = w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	var out struct {
		Count int `json:"count"`
	}
	err := newTestFetcher().GetJSON(context.Background(), srv.URL, url.Values{"live": {"all"}}, &out)
	require.NoError(t, err)
	assert.Equal(t, 3, out.Count)
}

func TestTransientRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := newTestFetcher().GetJSON(context.Background(), srv.URL, nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), calls.Load())
}

func TestTransientExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestFetcher().GetJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(maxRetries), calls.Load())
}

func TestRateLimitedNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestFetcher().GetJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.True(t, types.IsRateLimited(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestPermanentNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	err := newTestFetcher().GetJSON(context.Background(), srv.URL, nil, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var httpErr *types.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
}

func TestWithHeadersAttached(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Apisports-Key"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	f := newTestFetcher().WithHeaders(map[string]string{"x-apisports-key": "secret"})
	err := f.GetJSON(context.Background(), srv.URL, nil, nil)
	require.NoError(t, err)
}
