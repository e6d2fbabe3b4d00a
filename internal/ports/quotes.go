package ports

import (
	"context"

	"github.com/shopspring/decimal"
)

// QuoteSource defines the interface for retrieving current market prices.
// This abstraction decouples the core ledger and alert logic from any
// specific market-data implementation (live exchange, simulated feed).
type QuoteSource interface {
	// GetPrice retrieves the current price for a single instrument.
	// Returns ErrQuoteUnavailable (wrapped) if no price is known.
	GetPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error)

	// Snapshot retrieves current prices for the given instruments in one
	// call. Instruments without a known price are omitted from the result.
	Snapshot(ctx context.Context, instrumentIDs []string) (map[string]decimal.Decimal, error)
}
