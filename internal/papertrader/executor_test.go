package papertrader

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/polysignal/signal-engine/internal/polymarket"
	"github.com/polysignal/signal-engine/pkg/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockPlacer struct {
	balance   float64
	fillYes   bool
	fillNo    bool
	gtcSells  int
	fokOrders int
}

func (m *mockPlacer) PlaceFOKBuy(_ context.Context, tokenID string, price, _ float64) (OrderResult, error) {
	m.fokOrders++
	filled := m.fillYes
	if m.fokOrders == 2 {
		filled = m.fillNo
	}
	if !filled {
		return OrderResult{Filled: false, Reason: "FOK not filled"}, nil
	}
	return OrderResult{Filled: true, OrderID: "ord-" + tokenID, FillPrice: price}, nil
}

func (m *mockPlacer) PlaceGTCSell(context.Context, string, float64, float64) error {
	m.gtcSells++
	return nil
}

func (m *mockPlacer) BalanceUSDC(context.Context) (float64, error) {
	return m.balance, nil
}

func newTestExecutor(t *testing.T, books *bookServer, placer OrderPlacer) *Executor {
	t.Helper()
	srv := httptest.NewServer(books.handler())
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

	return NewExecutor(Config{
		MaxTradeSizeUSDC:     100,
		MaxRiskPerTradeUSDC:  200,
		SlippageTolerancePct: 1.0,
		MinLiquidityUSDC:     50,
		Logger:               zap.NewNop(),
	}, client, placer)
}

func TestExecutorBothLegsFill(t *testing.T) {
	books := &bookServer{books: map[string]string{
		"y1": deepBook(0.48),
		"n1": deepBook(0.49),
	}}
	placer := &mockPlacer{balance: 10_000, fillYes: true, fillNo: true}
	exec := newTestExecutor(t, books, placer)

	res := exec.Execute(context.Background(), testOpp())
	require.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, placer.fokOrders)
	assert.Zero(t, placer.gtcSells)
	// shares = min(100/0.48, 100/0.49, 200/0.97) = 100/0.49
	assert.InDelta(t, (100.0/0.49)*0.03, res.ProfitUSDC, 1e-6)
}

func TestExecutorHedgesWhenNoLegFails(t *testing.T) {
	books := &bookServer{books: map[string]string{
		"y1": deepBook(0.48),
		"n1": deepBook(0.49),
	}}
	placer := &mockPlacer{balance: 10_000, fillYes: true, fillNo: false}
	exec := newTestExecutor(t, books, placer)

	res := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, OutcomeFailedNoNotFilled, res.Outcome)
	assert.Equal(t, 1, placer.gtcSells)
}

func TestExecutorBalanceGate(t *testing.T) {
	books := &bookServer{books: map[string]string{}}
	placer := &mockPlacer{balance: 10}
	exec := newTestExecutor(t, books, placer)

	res := exec.Execute(context.Background(), testOpp())
	assert.Equal(t, OutcomeAbortedBalance, res.Outcome)
	assert.Zero(t, placer.fokOrders)
}
