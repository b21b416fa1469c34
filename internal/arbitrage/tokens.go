package arbitrage

import (
	"strings"

	"github.com/polysignal/signal-engine/pkg/types"
)

// ExtractTokenIDs resolves a market's (yes, no) outcome token IDs.
//
// Markets arrive in two shapes: an inline tokens list with
// {outcome, token_id} entries, or parallel clobTokenIds/outcomes arrays
// (JSON-encoded strings or native lists, already normalized by
// types.FlexList). Outcome matching is case-insensitive on "yes"/"1" and
// "no"/"0"; when no outcome matches, element 0 is assumed YES and element 1
// NO.
func ExtractTokenIDs(market *types.Market) (yesID, noID string) {
	if len(market.Tokens) > 0 {
		for _, t := range market.Tokens {
			switch strings.ToLower(strings.TrimSpace(t.Outcome)) {
			case "yes", "1":
				yesID = t.TokenID
			case "no", "0":
				noID = t.TokenID
			}
		}
		return yesID, noID
	}

	ids := market.ClobTokenIDs
	if len(ids) < 2 {
		return "", ""
	}

	outcomes := market.Outcomes
	if len(outcomes) == 0 {
		outcomes = types.FlexList{"Yes", "No"}
	}

	for i, outcome := range outcomes {
		if i >= len(ids) {
			break
		}
		switch strings.ToLower(strings.TrimSpace(outcome)) {
		case "yes", "1":
			yesID = ids[i]
		case "no", "0":
			noID = ids[i]
		}
	}

	// Positional fallback: first = YES, second = NO.
	if yesID == "" {
		yesID = ids[0]
	}
	if noID == "" {
		noID = ids[1]
	}

	return yesID, noID
}
