package cryptoarb

import (
	"math"
	"testing"

	"github.com/polysignal/signal-engine/internal/exchange"
	"github.com/stretchr/testify/assert"
)

func TestVWAPBuySingleLevel(t *testing.T) {
	asks := []exchange.PriceLevel{{Price: 100, Volume: 10}} // 1000 USDC available

	vwap, filled := VWAPBuy(asks, 500)
	assert.Equal(t, 100.0, vwap)
	assert.Equal(t, 500.0, filled)
}

func TestVWAPBuyWalksLevels(t *testing.T) {
	asks := []exchange.PriceLevel{
		{Price: 100, Volume: 1}, // 100 USDC
		{Price: 102, Volume: 1}, // 102 USDC
		{Price: 104, Volume: 5},
	}

	// 253 USDC: consumes both cheap levels plus ~0.49 units at 104.
	vwap, filled := VWAPBuy(asks, 253)
	assert.Equal(t, 253.0, filled)
	assert.Greater(t, vwap, 100.0)
	assert.Less(t, vwap, 104.0)

	// Cost exactness: vwap * qty must equal the USDC filled.
	qty := 1.0 + 1.0 + 51.0/104.0
	assert.InDelta(t, 253.0/qty, vwap, 1e-9)
}

func TestVWAPBuyExhaustedBook(t *testing.T) {
	asks := []exchange.PriceLevel{{Price: 100, Volume: 1}}

	vwap, filled := VWAPBuy(asks, 500)
	assert.Equal(t, 100.0, vwap)
	assert.Equal(t, 100.0, filled) // only 100 USDC of depth existed
}

func TestVWAPBuyEmptyBook(t *testing.T) {
	vwap, filled := VWAPBuy(nil, 500)
	assert.True(t, math.IsInf(vwap, 1))
	assert.Zero(t, filled)
}

func TestVWAPSellSymmetric(t *testing.T) {
	bids := []exchange.PriceLevel{
		{Price: 100, Volume: 1},
		{Price: 99, Volume: 1},
	}

	vwap, filled := VWAPSell(bids, 150)
	assert.Equal(t, 150.0, filled)
	// 1 unit at 100 plus 50/99 units at 99.
	qty := 1.0 + 50.0/99.0
	assert.InDelta(t, 150.0/qty, vwap, 1e-9)
}

func TestVWAPSellEmptyBook(t *testing.T) {
	vwap, filled := VWAPSell(nil, 100)
	assert.Zero(t, vwap)
	assert.Zero(t, filled)
}
