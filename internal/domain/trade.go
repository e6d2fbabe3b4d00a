package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents an immutable record of one executed order.
// Trades are only ever created by a successful trade execution and are
// appended to the trade log; they are never mutated or removed.
type Trade struct {
	ID           int64           // Unique identifier, assigned in append order (time-ordered)
	InstrumentID string          // Instrument the order was executed against
	DisplayName  string          // Human-readable instrument name at execution time
	Side         TradeSide       // BUY or SELL
	Amount       decimal.Decimal // Order size in euros
	Shares       decimal.Decimal // Amount / Price at execution
	Price        decimal.Decimal // Execution price per share
	Timestamp    time.Time       // Execution time (UTC)
}
