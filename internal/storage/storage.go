// Package storage persists detected opportunities for later inspection. This
// is best-effort observational storage; trade state lives in the paper
// trader's JSON snapshot, not here.
package storage

import (
	"context"

	"github.com/polysignal/signal-engine/internal/arbitrage"
)

// Storage is the interface for storing arbitrage opportunities.
type Storage interface {
	// StoreOpportunity stores a detected opportunity.
	StoreOpportunity(ctx context.Context, opp *arbitrage.Opportunity) error

	// Close closes the storage connection.
	Close() error
}
