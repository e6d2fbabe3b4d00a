package reporting

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// DayGroup is one calendar day of trade history, newest trade first.
type DayGroup struct {
	Date   string // "2006-01-02", in UTC
	Trades []*domain.Trade
}

// TradePnL pairs a trade with its live profit/loss against the current quote.
//
// For a buy the P&L is what the acquired shares are worth now minus what
// was actually paid: shares*currentPrice - amount. For a sell it is the
// mirror image, amount - shares*currentPrice: the proceeds kept versus
// what the sold shares would be worth now. HasQuote is false when no
// current quote was available; the P&L is zero in that case rather than
// pretending the position is worthless.
type TradePnL struct {
	Trade    *domain.Trade
	PnL      decimal.Decimal
	HasQuote bool
}

// GroupByDay groups trades by their UTC calendar day, newest day first.
// Input order within a day is preserved, so feeding trades newest-first
// yields newest-first groups throughout.
func GroupByDay(trades []*domain.Trade) []DayGroup {
	var groups []DayGroup
	index := make(map[string]int)
	for _, t := range trades {
		day := t.Timestamp.UTC().Format("2006-01-02")
		i, ok := index[day]
		if !ok {
			groups = append(groups, DayGroup{Date: day})
			i = len(groups) - 1
			index[day] = i
		}
		groups[i].Trades = append(groups[i].Trades, t)
	}
	return groups
}

// WithLivePnL annotates each trade with its live P&L against the given
// quote snapshot.
func WithLivePnL(trades []*domain.Trade, quotes map[string]decimal.Decimal) []TradePnL {
	out := make([]TradePnL, 0, len(trades))
	for _, t := range trades {
		entry := TradePnL{Trade: t}
		if price, ok := quotes[t.InstrumentID]; ok {
			entry.HasQuote = true
			current := t.Shares.Mul(price)
			if t.Side == domain.Buy {
				entry.PnL = current.Sub(t.Amount)
			} else {
				entry.PnL = t.Amount.Sub(current)
			}
		}
		out = append(out, entry)
	}
	return out
}

// Service reads the trade log and derives reporting views for consumers.
// It holds no state of its own beyond the repository handle.
type Service struct {
	logger    ports.Logger
	tradeRepo ports.TradeRepository
}

// NewService creates a reporting service.
func NewService(logger ports.Logger, tradeRepo ports.TradeRepository) (*Service, error) {
	if logger == nil || tradeRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for reporting service")
	}
	return &Service{logger: logger, tradeRepo: tradeRepo}, nil
}

// History returns the full trade history grouped by day, newest first.
func (s *Service) History(ctx context.Context) ([]DayGroup, error) {
	trades, err := s.tradeRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade history: %w", err)
	}
	return GroupByDay(trades), nil
}

// HistoryWithPnL returns the full trade history, newest first, annotated
// with live P&L against the given quote snapshot.
func (s *Service) HistoryWithPnL(ctx context.Context, quotes map[string]decimal.Decimal) ([]TradePnL, error) {
	trades, err := s.tradeRepo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load trade history: %w", err)
	}
	return WithLivePnL(trades, quotes), nil
}
