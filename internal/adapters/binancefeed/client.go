package binancefeed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	binance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/shopspring/decimal"

	"papertrader/internal/ports"
)

// Client implements the ports.QuoteSource interface using the go-binance
// library's spot ticker endpoints. It keeps a last-price cache so a
// transient feed failure degrades to slightly stale quotes instead of
// missing ones.
type Client struct {
	spotClient *binance.Client
	logger     ports.Logger

	mu        sync.RWMutex
	lastPrice map[string]decimal.Decimal
}

// Config holds configuration specific to the Binance quote adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance quote source adapter.
// Price endpoints are public, so empty API keys are allowed.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance quote client")
	}

	binance.UseTestnet = cfg.UseTestnet
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	cfg.Logger.Info(context.Background(), "Binance quote client configured", map[string]interface{}{
		"testnet": cfg.UseTestnet,
	})

	return &Client{
		spotClient: client,
		logger:     cfg.Logger,
		lastPrice:  make(map[string]decimal.Decimal),
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003: // Too many requests
			mappedErr = ports.ErrRateLimited
		case -1121: // Invalid symbol
			mappedErr = ports.ErrQuoteUnavailable
		default:
			mappedErr = ports.ErrFeedUnavailable
		}
		c.logger.Error(ctx, mappedErr, "Binance API error", fields)
		return fmt.Errorf("%s failed: %s (code %d): %w", operation, apiErr.Message, apiErr.Code, mappedErr)
	}

	c.logger.Error(ctx, err, "Binance request error", fields)
	return fmt.Errorf("%s failed: %w", operation, err)
}

// GetPrice retrieves the current price for a single instrument, falling
// back to the cached last price when the feed call fails.
func (c *Client) GetPrice(ctx context.Context, instrumentID string) (decimal.Decimal, error) {
	op := "GetPrice"
	prices, err := c.spotClient.NewListPricesService().Symbol(instrumentID).Do(ctx)
	if err != nil {
		if last, ok := c.cached(instrumentID); ok {
			c.logger.Warn(ctx, "Quote fetch failed, serving last known price", map[string]interface{}{
				"instrument": instrumentID,
				"price":      last.String(),
			})
			return last, nil
		}
		return decimal.Zero, c.handleError(ctx, err, op)
	}
	if len(prices) == 0 {
		return decimal.Zero, fmt.Errorf("no price data returned for %s: %w", instrumentID, ports.ErrQuoteUnavailable)
	}

	price, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		parseErr := fmt.Errorf("could not parse price '%s': %w", prices[0].Price, err)
		return decimal.Zero, c.handleError(ctx, parseErr, op)
	}
	if !price.IsPositive() {
		return decimal.Zero, fmt.Errorf("non-positive price %s for %s: %w", price.String(), instrumentID, ports.ErrQuoteUnavailable)
	}
	c.remember(instrumentID, price)
	return price, nil
}

// Snapshot retrieves current prices for the given instruments in one call.
// Instruments the feed does not know are omitted from the result.
func (c *Client) Snapshot(ctx context.Context, instrumentIDs []string) (map[string]decimal.Decimal, error) {
	op := "Snapshot"
	if len(instrumentIDs) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	prices, err := c.spotClient.NewListPricesService().Symbols(instrumentIDs).Do(ctx)
	if err != nil {
		// Serve whatever the cache covers rather than an empty snapshot.
		cached := c.cachedSubset(instrumentIDs)
		if len(cached) > 0 {
			c.logger.Warn(ctx, "Snapshot fetch failed, serving last known prices", map[string]interface{}{
				"requested": len(instrumentIDs),
				"cached":    len(cached),
			})
			return cached, nil
		}
		return nil, c.handleError(ctx, err, op)
	}

	out := make(map[string]decimal.Decimal, len(prices))
	for _, p := range prices {
		price, err := decimal.NewFromString(p.Price)
		if err != nil || !price.IsPositive() {
			c.logger.Warn(ctx, "Skipping unparseable ticker price", map[string]interface{}{
				"instrument": p.Symbol,
				"raw":        p.Price,
			})
			continue
		}
		out[p.Symbol] = price
		c.remember(p.Symbol, price)
	}
	return out, nil
}

func (c *Client) cached(instrumentID string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.lastPrice[instrumentID]
	return p, ok
}

func (c *Client) cachedSubset(instrumentIDs []string) map[string]decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]decimal.Decimal)
	for _, id := range instrumentIDs {
		if p, ok := c.lastPrice[id]; ok {
			out[id] = p
		}
	}
	return out
}

func (c *Client) remember(instrumentID string, price decimal.Decimal) {
	c.mu.Lock()
	c.lastPrice[instrumentID] = price
	c.mu.Unlock()
}
