package domain

import "github.com/shopspring/decimal"

// Holding represents one open position in one instrument.
type Holding struct {
	InstrumentID string          // Stable instrument key (e.g., "AAPL")
	DisplayName  string          // Human-readable name for user display
	Shares       decimal.Decimal // Number of shares held, may be fractional, never negative
	TotalCost    decimal.Decimal // Cumulative euros paid for the currently-held shares
}

// AvgCost returns the weighted-average cost per share.
// Returns zero when no shares are held; the average is always derived
// from the running TotalCost, never stored.
func (h *Holding) AvgCost() decimal.Decimal {
	if h.Shares.IsZero() {
		return decimal.Zero
	}
	return h.TotalCost.Div(h.Shares)
}

// IsEmpty reports whether the holding is below the removal epsilon and
// should be deleted from the ledger.
func (h *Holding) IsEmpty() bool {
	return h.Shares.LessThan(ShareEpsilon)
}

// Clone returns a copy of the holding.
func (h *Holding) Clone() *Holding {
	c := *h
	return &c
}
