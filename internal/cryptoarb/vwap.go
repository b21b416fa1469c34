package cryptoarb

import (
	"math"

	"github.com/polysignal/signal-engine/internal/exchange"
)

// VWAPBuy walks the ask side spending up to usdc, returning the volume-
// weighted fill price and the USDC actually filled. An exhausted book
// returns the VWAP of the depth that did fill; an empty book yields a +Inf
// price and zero filled.
func VWAPBuy(asks []exchange.PriceLevel, usdc float64) (vwap, filled float64) {
	remaining := usdc
	cost, qty := 0.0, 0.0

	for _, lvl := range asks {
		levelValue := lvl.Price * lvl.Volume
		if remaining <= levelValue {
			fillQty := remaining / lvl.Price
			cost += fillQty * lvl.Price
			qty += fillQty
			remaining = 0
			break
		}
		cost += levelValue
		qty += lvl.Volume
		remaining -= levelValue
	}

	if qty == 0 {
		return math.Inf(1), 0
	}

	return cost / qty, usdc - remaining
}

// VWAPSell walks the bid side selling inventory worth up to usdc, returning
// the volume-weighted fill price and the USDC proceeds filled.
func VWAPSell(bids []exchange.PriceLevel, usdc float64) (vwap, filled float64) {
	remaining := usdc
	proceeds, qty := 0.0, 0.0

	for _, lvl := range bids {
		levelValue := lvl.Price * lvl.Volume
		if remaining <= levelValue {
			fillQty := remaining / lvl.Price
			proceeds += fillQty * lvl.Price
			qty += fillQty
			remaining = 0
			break
		}
		proceeds += levelValue
		qty += lvl.Volume
		remaining -= levelValue
	}

	if qty == 0 {
		return 0, 0
	}

	return proceeds / qty, usdc - remaining
}
