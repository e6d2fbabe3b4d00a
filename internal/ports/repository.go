package ports

import (
	"context"

	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
)

// LedgerSnapshot is the full serializable state of one ledger, written
// through to storage after every successful mutation.
type LedgerSnapshot struct {
	Balance  decimal.Decimal
	Holdings []*domain.Holding
}

// LedgerRepository defines the interface for persisting ledger state.
type LedgerRepository interface {
	// SaveSnapshot replaces the stored balance and holdings atomically.
	SaveSnapshot(ctx context.Context, snap *LedgerSnapshot) error
	// LoadSnapshot retrieves the stored balance and holdings.
	// Returns nil, nil if no snapshot has ever been saved.
	LoadSnapshot(ctx context.Context) (*LedgerSnapshot, error)
}

// TradeRepository defines the interface for the append-only trade log.
type TradeRepository interface {
	// Append saves a new trade record and returns its assigned ID.
	// IDs are assigned in append order and are therefore time-ordered.
	Append(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindAll retrieves all trades, newest first.
	FindAll(ctx context.Context) ([]*domain.Trade, error)
	// FindByInstrument retrieves the most recent trades for an instrument, up to a limit.
	FindByInstrument(ctx context.Context, instrumentID string, limit int) ([]*domain.Trade, error)
	// Count returns the number of trades in the log.
	Count(ctx context.Context) (int, error)
}

// AlertRepository defines the interface for persisting alert rules,
// notification preferences and the device registry.
type AlertRepository interface {
	// RegisterDevice records a device, creating default preferences if new.
	RegisterDevice(ctx context.Context, prefs *domain.NotificationPreferences) error
	// IsDeviceRegistered reports whether the device is known.
	IsDeviceRegistered(ctx context.Context, deviceID string) (bool, error)
	// SaveRule inserts or updates an alert rule.
	SaveRule(ctx context.Context, rule *domain.AlertRule) error
	// DeleteRule removes a rule by ID. Returns ErrRuleNotFound if absent.
	DeleteRule(ctx context.Context, ruleID string) error
	// FindRulesByDevice retrieves all rules owned by a device, oldest first.
	FindRulesByDevice(ctx context.Context, deviceID string) ([]*domain.AlertRule, error)
	// SavePreferences persists the device's notification preferences.
	SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) error
	// FindPreferences retrieves the device's notification preferences.
	// Returns nil, nil if the device is not registered.
	FindPreferences(ctx context.Context, deviceID string) (*domain.NotificationPreferences, error)
}
