package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// Service owns one user's simulated cash balance and holdings and executes
// paper trades against caller-supplied live prices.
//
// The whole validate-then-mutate sequence of ExecuteTrade is a critical
// section: two trades on the same ledger never interleave. State is
// committed in memory only after the write-through to the repository
// succeeds, so a failed trade leaves balance, holdings and the trade log
// unchanged.
type Service struct {
	logger     ports.Logger
	ledgerRepo ports.LedgerRepository
	tradeRepo  ports.TradeRepository

	mu       sync.Mutex
	balance  decimal.Decimal
	holdings map[string]*domain.Holding

	// Last price seen per instrument, used as the valuation fallback when
	// the current quote snapshot is missing an entry (stale feed).
	lastPrices map[string]decimal.Decimal
}

// Config holds the dependencies and starting state for a ledger service.
type Config struct {
	Logger          ports.Logger
	LedgerRepo      ports.LedgerRepository
	TradeRepo       ports.TradeRepository
	StartingBalance decimal.Decimal // Used only when no persisted snapshot exists
}

// TradeInput describes one buy or sell order request.
type TradeInput struct {
	InstrumentID string
	DisplayName  string
	Side         domain.TradeSide
	Amount       decimal.Decimal // Order size in euros, must be > 0
	Price        decimal.Decimal // Current price from the quote source, must be > 0
}

// TradeResult is the outcome of an ExecuteTrade call. Validation failures
// are reported here, never as panics: callers branch on Success and show
// Err to the user.
type TradeResult struct {
	Success bool
	Trade   *domain.Trade // Set only on success
	Err     error         // Set only on failure, wraps a ports sentinel error
}

// PnL bundles absolute and relative portfolio profit/loss.
type PnL struct {
	Value   decimal.Decimal // PortfolioValue - PortfolioCost, in euros
	Percent decimal.Decimal // Value / cost * 100, zero when nothing is held
}

// New creates a ledger service, resuming from the persisted snapshot when
// one exists and otherwise starting from the configured balance.
func New(ctx context.Context, cfg Config) (*Service, error) {
	if cfg.Logger == nil || cfg.LedgerRepo == nil || cfg.TradeRepo == nil {
		return nil, fmt.Errorf("missing required dependencies for ledger service")
	}
	if cfg.StartingBalance.IsNegative() {
		return nil, fmt.Errorf("starting balance cannot be negative: %w", ports.ErrConfigurationError)
	}

	s := &Service{
		logger:     cfg.Logger,
		ledgerRepo: cfg.LedgerRepo,
		tradeRepo:  cfg.TradeRepo,
		balance:    cfg.StartingBalance,
		holdings:   make(map[string]*domain.Holding),
		lastPrices: make(map[string]decimal.Decimal),
	}

	snap, err := cfg.LedgerRepo.LoadSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load ledger snapshot: %w", err)
	}
	if snap != nil {
		s.balance = snap.Balance
		for _, h := range snap.Holdings {
			s.holdings[h.InstrumentID] = h.Clone()
		}
		s.logger.Info(ctx, "Resumed ledger from snapshot", map[string]interface{}{
			"balance":  snap.Balance.StringFixed(2),
			"holdings": len(snap.Holdings),
		})
	} else {
		s.logger.Info(ctx, "Starting fresh ledger", map[string]interface{}{
			"balance": cfg.StartingBalance.StringFixed(2),
		})
	}
	return s, nil
}

// ExecuteTrade validates and executes one buy or sell order atomically
// against the current ledger state.
//
// On a buy the euro amount is debited from the balance and added to the
// holding's running cost basis; the weighted-average cost is always derived
// from that running sum, never stored. On a sell a proportional slice of
// the cost basis is removed and the euro amount credited back. Holdings
// whose share count drops below the removal epsilon are deleted.
func (s *Service) ExecuteTrade(ctx context.Context, input TradeInput) TradeResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !input.Side.IsValid() {
		return s.fail(ctx, input, fmt.Errorf("unknown trade side %q: %w", input.Side, ports.ErrInvalidInput))
	}
	if !input.Amount.IsPositive() {
		return s.fail(ctx, input, fmt.Errorf("amount must be positive, got €%s: %w", input.Amount.StringFixed(2), ports.ErrInvalidInput))
	}
	if !input.Price.IsPositive() {
		return s.fail(ctx, input, fmt.Errorf("price must be positive, got €%s: %w", input.Price.StringFixed(2), ports.ErrInvalidInput))
	}

	shares := input.Amount.Div(input.Price)

	// Compute the post-trade state without touching the committed state.
	newBalance := s.balance
	var newHolding *domain.Holding
	removeHolding := false

	switch input.Side {
	case domain.Buy:
		if input.Amount.GreaterThan(s.balance) {
			return s.fail(ctx, input, fmt.Errorf("€%s available, €%s requested: %w",
				s.balance.StringFixed(2), input.Amount.StringFixed(2), ports.ErrInsufficientBalance))
		}
		if existing, ok := s.holdings[input.InstrumentID]; ok {
			newHolding = existing.Clone()
			newHolding.Shares = newHolding.Shares.Add(shares)
			newHolding.TotalCost = newHolding.TotalCost.Add(input.Amount)
			newHolding.DisplayName = input.DisplayName
		} else {
			newHolding = &domain.Holding{
				InstrumentID: input.InstrumentID,
				DisplayName:  input.DisplayName,
				Shares:       shares,
				TotalCost:    input.Amount,
			}
		}
		newBalance = newBalance.Sub(input.Amount)

	case domain.Sell:
		existing, ok := s.holdings[input.InstrumentID]
		if !ok {
			return s.fail(ctx, input, fmt.Errorf("0 shares owned, %s requested: %w",
				shares.String(), ports.ErrInsufficientShares))
		}
		if existing.Shares.LessThan(shares) {
			return s.fail(ctx, input, fmt.Errorf("%s shares owned, %s requested: %w",
				existing.Shares.String(), shares.String(), ports.ErrInsufficientShares))
		}
		// Remove a proportional slice of the cost basis.
		costRemoved := existing.AvgCost().Mul(shares)
		newHolding = existing.Clone()
		newHolding.Shares = newHolding.Shares.Sub(shares)
		newHolding.TotalCost = decimal.Max(decimal.Zero, newHolding.TotalCost.Sub(costRemoved))
		if newHolding.IsEmpty() {
			removeHolding = true
		}
		newBalance = newBalance.Add(input.Amount)
	}

	trade := &domain.Trade{
		InstrumentID: input.InstrumentID,
		DisplayName:  input.DisplayName,
		Side:         input.Side,
		Amount:       input.Amount,
		Shares:       shares,
		Price:        input.Price,
		Timestamp:    time.Now().UTC(),
	}

	// Write-through: persist the new snapshot first, then append the trade.
	// If the append fails the old snapshot is restored, so the stored state
	// never reflects a half-applied trade.
	oldSnap := s.snapshotLocked()
	newSnap := s.buildSnapshotLocked(newBalance, input.InstrumentID, newHolding, removeHolding)

	if err := s.ledgerRepo.SaveSnapshot(ctx, newSnap); err != nil {
		s.logger.Error(ctx, err, "Failed to persist ledger snapshot, trade aborted", map[string]interface{}{
			"instrument": input.InstrumentID,
			"side":       input.Side,
		})
		return TradeResult{Success: false, Err: fmt.Errorf("failed to persist trade: %w", err)}
	}
	id, err := s.tradeRepo.Append(ctx, trade)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to append trade, restoring previous snapshot", map[string]interface{}{
			"instrument": input.InstrumentID,
			"side":       input.Side,
		})
		if restoreErr := s.ledgerRepo.SaveSnapshot(ctx, oldSnap); restoreErr != nil {
			s.logger.Error(ctx, restoreErr, "FAILED TO RESTORE LEDGER SNAPSHOT", map[string]interface{}{
				"instrument": input.InstrumentID,
			})
		}
		return TradeResult{Success: false, Err: fmt.Errorf("failed to record trade: %w", err)}
	}
	trade.ID = id

	// Commit in memory only after both writes succeeded.
	s.balance = newBalance
	if removeHolding {
		delete(s.holdings, input.InstrumentID)
	} else {
		s.holdings[input.InstrumentID] = newHolding
	}
	s.lastPrices[input.InstrumentID] = input.Price

	s.logger.Info(ctx, "Trade executed", map[string]interface{}{
		"tradeID":    trade.ID,
		"instrument": trade.InstrumentID,
		"side":       trade.Side,
		"amount":     trade.Amount.StringFixed(2),
		"shares":     trade.Shares.String(),
		"price":      trade.Price.StringFixed(2),
		"balance":    s.balance.StringFixed(2),
	})
	return TradeResult{Success: true, Trade: trade}
}

// fail logs and wraps a validation failure. No state is touched.
func (s *Service) fail(ctx context.Context, input TradeInput, err error) TradeResult {
	s.logger.Warn(ctx, "Trade rejected", map[string]interface{}{
		"instrument": input.InstrumentID,
		"side":       input.Side,
		"reason":     err.Error(),
	})
	return TradeResult{Success: false, Err: err}
}

// PortfolioValue returns the live market value of all holdings using the
// given quote snapshot. A holding whose quote is missing is valued at its
// last-known price, and failing that at its average cost; it is never
// treated as worthless. Prices present in the snapshot refresh the
// last-known price cache.
func (s *Service) PortfolioValue(quotes map[string]decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for id, h := range s.holdings {
		price, ok := quotes[id]
		if ok {
			s.lastPrices[id] = price
		} else if last, seen := s.lastPrices[id]; seen {
			price = last
		} else {
			price = h.AvgCost()
		}
		total = total.Add(h.Shares.Mul(price))
	}
	return total
}

// PortfolioCost returns the cumulative cost basis of all holdings.
func (s *Service) PortfolioCost() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, h := range s.holdings {
		total = total.Add(h.TotalCost)
	}
	return total
}

// PortfolioPnL returns unrealized profit/loss against the cost basis.
// The percentage is zero when nothing is held (no division by zero).
func (s *Service) PortfolioPnL(quotes map[string]decimal.Decimal) PnL {
	value := s.PortfolioValue(quotes)
	cost := s.PortfolioCost()
	pnl := value.Sub(cost)
	pct := decimal.Zero
	if cost.IsPositive() {
		pct = pnl.Div(cost).Mul(decimal.NewFromInt(100))
	}
	return PnL{Value: pnl, Percent: pct}
}

// CanBuy reports whether a buy of the given euro amount would pass validation.
func (s *Service) CanBuy(amount decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return amount.IsPositive() && amount.LessThanOrEqual(s.balance)
}

// CanSell reports whether the given number of shares of an instrument is owned.
func (s *Service) CanSell(instrumentID string, shares decimal.Decimal) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holdings[instrumentID]
	return ok && h.Shares.GreaterThanOrEqual(shares)
}

// Balance returns the current cash balance.
func (s *Service) Balance() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance
}

// Holdings returns a copy of all open holdings, sorted by instrument ID.
func (s *Service) Holdings() []*domain.Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*domain.Holding, 0, len(s.holdings))
	for _, h := range s.holdings {
		out = append(out, h.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentID < out[j].InstrumentID })
	return out
}

// Holding returns a copy of one holding, or nil if the instrument is not held.
func (s *Service) Holding(instrumentID string) *domain.Holding {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.holdings[instrumentID]; ok {
		return h.Clone()
	}
	return nil
}

// snapshotLocked captures the current committed state.
// Callers must hold s.mu.
func (s *Service) snapshotLocked() *ports.LedgerSnapshot {
	snap := &ports.LedgerSnapshot{Balance: s.balance}
	for _, h := range s.holdings {
		snap.Holdings = append(snap.Holdings, h.Clone())
	}
	return snap
}

// buildSnapshotLocked captures the would-be state after applying one
// holding change on top of the committed state. Callers must hold s.mu.
func (s *Service) buildSnapshotLocked(balance decimal.Decimal, instrumentID string, changed *domain.Holding, removed bool) *ports.LedgerSnapshot {
	snap := &ports.LedgerSnapshot{Balance: balance}
	for id, h := range s.holdings {
		if id == instrumentID {
			continue
		}
		snap.Holdings = append(snap.Holdings, h.Clone())
	}
	if !removed && changed != nil {
		snap.Holdings = append(snap.Holdings, changed.Clone())
	}
	return snap
}
