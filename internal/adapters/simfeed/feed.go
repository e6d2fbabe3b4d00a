package simfeed

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/shopspring/decimal"

	"papertrader/internal/ports"
)

// Feed implements the ports.QuoteSource interface with a seeded
// random-walk per instrument. The demo's offline mode: deterministic for
// a given seed, safe for concurrent readers, no network.
type Feed struct {
	logger     ports.Logger
	drift      float64 // Per-tick expected relative move
	volatility float64 // Per-tick standard deviation of the relative move

	mu     sync.RWMutex
	rng    *rand.Rand
	prices map[string]decimal.Decimal
}

// Config holds the simulation parameters.
type Config struct {
	Logger     ports.Logger
	Seed       int64
	Drift      float64 // e.g. 0.0002
	Volatility float64 // e.g. 0.01
	// Initial price per instrument. Instruments not listed here are
	// unknown to the feed and yield ErrQuoteUnavailable.
	InitialPrices map[string]decimal.Decimal
}

// New creates a simulated quote feed.
func New(cfg Config) (*Feed, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for simulated feed")
	}
	if cfg.Volatility < 0 {
		return nil, fmt.Errorf("volatility cannot be negative: %w", ports.ErrConfigurationError)
	}

	prices := make(map[string]decimal.Decimal, len(cfg.InitialPrices))
	for id, p := range cfg.InitialPrices {
		if !p.IsPositive() {
			return nil, fmt.Errorf("initial price for %s must be positive, got %s: %w", id, p.String(), ports.ErrConfigurationError)
		}
		prices[id] = p
	}

	return &Feed{
		logger:     cfg.Logger,
		drift:      cfg.Drift,
		volatility: cfg.Volatility,
		rng:        rand.New(rand.NewSource(cfg.Seed)),
		prices:     prices,
	}, nil
}

// Tick advances every instrument's price one random-walk step.
// Prices never drop below one cent.
func (f *Feed) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	floor := decimal.RequireFromString("0.01")
	for id, p := range f.prices {
		move := f.drift + f.rng.NormFloat64()*f.volatility
		factor := decimal.NewFromFloat(math.Max(0, 1+move))
		next := p.Mul(factor).Round(4)
		f.prices[id] = decimal.Max(floor, next)
	}
}

// SetPrice pins an instrument to an exact price. Used by the replay
// utility and by tests to drive scripted scenarios.
func (f *Feed) SetPrice(instrumentID string, price decimal.Decimal) {
	f.mu.Lock()
	f.prices[instrumentID] = price
	f.mu.Unlock()
}

// GetPrice retrieves the current simulated price for a single instrument.
func (f *Feed) GetPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.prices[instrumentID]
	if !ok {
		return decimal.Zero, fmt.Errorf("instrument %s: %w", instrumentID, ports.ErrQuoteUnavailable)
	}
	return p, nil
}

// Snapshot retrieves current simulated prices for the given instruments.
// Unknown instruments are omitted.
func (f *Feed) Snapshot(ctx context.Context, instrumentIDs []string) (map[string]decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make(map[string]decimal.Decimal, len(instrumentIDs))
	for _, id := range instrumentIDs {
		if p, ok := f.prices[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// Instruments returns the IDs the feed knows about.
func (f *Feed) Instruments() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.prices))
	for id := range f.prices {
		out = append(out, id)
	}
	return out
}
