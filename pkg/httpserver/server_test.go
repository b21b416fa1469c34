package httpserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/polysignal/signal-engine/pkg/bus"
	"github.com/polysignal/signal-engine/pkg/healthprobe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeAddressBook struct {
	addresses map[string]string
}

func (f *fakeAddressBook) List() interface{} {
	return f.addresses
}

func (f *fakeAddressBook) Add(address, nickname string) interface{} {
	f.addresses[address] = nickname
	return map[string]string{"address": address, "nickname": nickname}
}

func (f *fakeAddressBook) Remove(address string) bool {
	_, ok := f.addresses[address]
	delete(f.addresses, address)
	return ok
}

func newTestServer(t *testing.T) (*Server, *httptest.Server, *bus.Bus) {
	t.Helper()

	health := healthprobe.New()
	health.SetReady(true)
	eventBus := bus.New(50, zap.NewNop())

	srv := New(&Config{
		Port:          "0",
		Logger:        zap.NewNop(),
		HealthChecker: health,
		Bus:           eventBus,
		Snapshots: map[string]SnapshotFunc{
			"paper": func() interface{} {
				return map[string]float64{"balance_usdc": 10_000}
			},
		},
		AddressBook: &fakeAddressBook{addresses: map[string]string{"0xabc": "whale"}},
	})

	ts := httptest.NewServer(srv.server.Handler)
	t.Cleanup(ts.Close)

	return srv, ts, eventBus
}

func TestHealthAndSnapshotRoutes(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/readyz")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/paper/snapshot")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot map[string]float64
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))
	assert.Equal(t, 10_000.0, snapshot["balance_usdc"])
}

func TestMetricsRoute(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAddressRoutes(t *testing.T) {
	_, ts, _ := newTestServer(t)

	// Add.
	resp, err := http.Post(ts.URL+"/api/mirror/addresses", "application/json",
		strings.NewReader(`{"address": "0xdef", "nickname": "fish"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	// Missing address rejected.
	resp, err = http.Post(ts.URL+"/api/mirror/addresses", "application/json",
		strings.NewReader(`{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	_ = resp.Body.Close()

	// Delete existing, then missing.
	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/mirror/addresses/0xdef", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_ = resp.Body.Close()

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	_ = resp.Body.Close()
}

func TestEventStreamReplaysHistoryThenLive(t *testing.T) {
	_, ts, eventBus := newTestServer(t)

	eventBus.Publish("scan", map[string]interface{}{"n": 1})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/events"
	conn, resp, err := websocket.DefaultDialer.DialContext(context.Background(), wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	var first bus.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "scan", first.Type)

	eventBus.Publish("trade", map[string]interface{}{"n": 2})
	var second bus.Event
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "trade", second.Type)
}
