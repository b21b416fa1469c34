package mirror

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type positionsServer struct {
	mu     sync.Mutex
	body   string
	status int
}

func (s *positionsServer) set(body string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.body = body
	s.status = status
}

func (s *positionsServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		body, status := s.body, s.status
		s.mu.Unlock()
		if status != 0 && status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		_, _ = w.Write([]byte(body))
	})
}

type callbackRecorder struct {
	mu     sync.Mutex
	events []string
}

func (c *callbackRecorder) opened(cfg *WatchedAddress, pos polymarket.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "opened:"+pos.Asset)
}

func (c *callbackRecorder) closed(cfg *WatchedAddress, pos polymarket.Position) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, "closed:"+pos.Asset)
}

func (c *callbackRecorder) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	copy(out, c.events)
	return out
}

func newTestMonitorWith(t *testing.T, srv *positionsServer, onOpened, onClosed PositionCallback) *AddressMonitor {
	t.Helper()
	server := httptest.NewServer(srv.handler())
	t.Cleanup(server.Close)

	f := fetcher.New(fetcher.Config{
		Timeout:   2 * time.Second,
		BaseDelay: time.Millisecond,
		Logger:    zap.NewNop(),
	})
	client := polymarket.NewClient(polymarket.Config{
		GammaHost: server.URL,
		ClobHost:  server.URL,
		DataHost:  server.URL,
		Fetcher:   f,
		Logger:    zap.NewNop(),
	})

	return NewAddressMonitor(MonitorConfig{
		DefaultInterval: 30 * time.Second,
		LogDir:          t.TempDir(),
		Logger:          zap.NewNop(),
	}, client, bus.New(50, zap.NewNop()), onOpened, onClosed)
}

func TestBaselinePollEmitsNoCallbacks(t *testing.T) {
	srv := &positionsServer{body: `[
		{"asset": "a1", "title": "M1", "curPrice": 0.4},
		{"asset": "a2", "title": "M2", "curPrice": 0.6},
		{"asset": "a3", "title": "M3", "curPrice": 0.7}
	]`}
	rec := &callbackRecorder{}
	m := newTestMonitorWith(t, srv, rec.opened, rec.closed)

	cfg := m.AddAddress("0xWHALE", "whale", 0)
	m.pollAddress(context.Background(), cfg)

	assert.Empty(t, rec.all())
	assert.True(t, cfg.IsInitialized)
	assert.Equal(t, 3, cfg.LastPollCount)
	assert.Equal(t, 0, cfg.LastPollNew)
	assert.Equal(t, 0, cfg.LastPollClosed)
}

func TestDiffEmitsOpensBeforeCloses(t *testing.T) {
	srv := &positionsServer{body: `[
		{"asset": "a1", "title": "M1", "curPrice": 0.4},
		{"asset": "a2", "title": "M2", "curPrice": 0.6}
	]`}
	rec := &callbackRecorder{}
	m := newTestMonitorWith(t, srv, rec.opened, rec.closed)

	cfg := m.AddAddress("0xwhale", "whale", 0)
	m.pollAddress(context.Background(), cfg) // baseline

	// a1 closes, a3 opens.
	srv.set(`[
		{"asset": "a2", "title": "M2", "curPrice": 0.6},
		{"asset": "a3", "title": "M3", "curPrice": 0.3}
	]`, 0)
	m.pollAddress(context.Background(), cfg)

	assert.Equal(t, []string{"opened:a3", "closed:a1"}, rec.all())
	assert.Equal(t, 1, cfg.LastPollNew)
	assert.Equal(t, 1, cfg.LastPollClosed)
}

func TestEnvelopePayloadAccepted(t *testing.T) {
	srv := &positionsServer{body: `{"positions": [{"asset": "a1", "curPrice": 0.5}]}`}
	m := newTestMonitorWith(t, srv, nil, nil)

	cfg := m.AddAddress("0xwhale", "whale", 0)
	m.pollAddress(context.Background(), cfg)

	assert.True(t, cfg.IsInitialized)
	assert.Equal(t, 1, cfg.LastPollCount)
}

func TestRateLimitSetsCooldown(t *testing.T) {
	srv := &positionsServer{status: http.StatusTooManyRequests}
	m := newTestMonitorWith(t, srv, nil, nil)

	cfg := m.AddAddress("0xwhale", "whale", 0)
	m.pollAddress(context.Background(), cfg)

	assert.True(t, cfg.IsRateLimited(time.Now()))
	assert.Equal(t, "rate_limited", cfg.Health(time.Now()))
	assert.WithinDuration(t, time.Now().Add(rateLimitPause), cfg.RateLimitedUntil, 2*time.Second)
	// A 429 does not count toward the stale threshold.
	assert.Equal(t, 0, cfg.ConsecutiveFails)
	assert.False(t, cfg.IsInitialized)
}

func TestStaleAfterFiveFailuresAndRecovery(t *testing.T) {
	srv := &positionsServer{status: http.StatusNotFound}
	m := newTestMonitorWith(t, srv, nil, nil)

	cfg := m.AddAddress("0xwhale", "whale", 0)
	for i := 0; i < maxFailuresStale; i++ {
		m.pollAddress(context.Background(), cfg)
	}

	assert.True(t, cfg.IsStale())
	assert.Equal(t, "stale", cfg.Health(time.Now()))

	// A successful poll clears the failure counter and exits stale.
	srv.set(`[]`, 0)
	m.pollAddress(context.Background(), cfg)
	assert.False(t, cfg.IsStale())
	assert.Equal(t, "ok", cfg.Health(time.Now()))
}

func TestCallbackPanicSwallowed(t *testing.T) {
	srv := &positionsServer{body: `[]`}
	m := newTestMonitorWith(t, srv, func(*WatchedAddress, polymarket.Position) {
		panic("boom")
	}, nil)

	cfg := m.AddAddress("0xwhale", "whale", 0)
	m.pollAddress(context.Background(), cfg) // baseline

	srv.set(`[{"asset": "a1", "curPrice": 0.4}]`, 0)
	// Must not panic the poll step.
	require.NotPanics(t, func() {
		m.pollAddress(context.Background(), cfg)
	})
	assert.Equal(t, 1, cfg.LastPollNew)
}

func TestRosterPersistenceRoundTrip(t *testing.T) {
	logDir := t.TempDir()
	newMonitor := func() *AddressMonitor {
		return NewAddressMonitor(MonitorConfig{
			DefaultInterval: 30 * time.Second,
			LogDir:          logDir,
			Logger:          zap.NewNop(),
		}, nil, bus.New(10, zap.NewNop()), nil, nil)
	}

	m := newMonitor()
	m.AddAddress("0xWHALE", "whale", 0)
	m.AddAddress("0xfish", "fish", 0)
	disabled := false
	require.True(t, m.UpdateAddress("0xfish", nil, &disabled))
	require.True(t, m.RemoveAddress("0xWHALE"))

	// A second monitor over the same log dir loads the survivors.
	addrs := newMonitor().GetAddresses()
	require.Len(t, addrs, 1)
	assert.Equal(t, "0xfish", addrs[0].Address)
	assert.False(t, addrs[0].Enabled)
}
