package domain

import "github.com/shopspring/decimal"

// TradeSide represents the side of an executed order (BUY or SELL).
type TradeSide string

const (
	Buy  TradeSide = "BUY"
	Sell TradeSide = "SELL"
)

// IsValid reports whether the side is one of the known constants.
func (s TradeSide) IsValid() bool {
	return s == Buy || s == Sell
}

// AlertType represents the kind of condition an alert rule checks.
type AlertType string

const (
	AlertAbove         AlertType = "above"          // fires when price >= threshold (euros)
	AlertBelow         AlertType = "below"          // fires when price <= threshold (euros)
	AlertPercentChange AlertType = "percent_change" // fires when abs move from reference >= threshold (percent)
)

// IsValid reports whether the alert type is one of the known constants.
func (t AlertType) IsValid() bool {
	switch t {
	case AlertAbove, AlertBelow, AlertPercentChange:
		return true
	}
	return false
}

// ShareEpsilon is the share count below which a holding is considered
// fully liquidated and removed from the ledger.
var ShareEpsilon = decimal.RequireFromString("0.0001")
