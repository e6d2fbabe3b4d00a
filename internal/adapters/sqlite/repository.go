package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// Repository implements the ports.LedgerRepository, ports.TradeRepository
// and ports.AlertRepository interfaces using SQLite.
//
// Money and share values are stored as TEXT and parsed back with
// shopspring/decimal, so storage round-trips never lose precision.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/papertrader.db" // Default path
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000") // WAL mode for better concurrency
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite database ready", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS ledger (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		balance TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS holdings (
		instrument_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		shares TEXT NOT NULL,
		total_cost TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		instrument_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		side TEXT NOT NULL,
		amount TEXT NOT NULL,
		shares TEXT NOT NULL,
		price TEXT NOT NULL,
		timestamp TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS devices (
		device_id TEXT PRIMARY KEY,
		alerts_enabled INTEGER NOT NULL DEFAULT 1,
		default_threshold TEXT NOT NULL,
		quiet_hours_start INTEGER DEFAULT NULL,
		quiet_hours_end INTEGER DEFAULT NULL
	);

	CREATE TABLE IF NOT EXISTS alert_rules (
		id TEXT PRIMARY KEY,
		device_id TEXT NOT NULL,
		instrument_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		type TEXT NOT NULL,
		threshold TEXT NOT NULL,
		reference_price TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		last_triggered TIMESTAMP DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_instrument_timestamp ON trades (instrument_id, timestamp);
	CREATE INDEX IF NOT EXISTS idx_alert_rules_device ON alert_rules (device_id);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- LedgerRepository Implementation ---

// SaveSnapshot replaces the stored balance and holdings in one transaction.
func (r *Repository) SaveSnapshot(ctx context.Context, snap *ports.LedgerSnapshot) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO ledger (id, balance) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET balance = excluded.balance`,
		snap.Balance.String()); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings`); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}
	for _, h := range snap.Holdings {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO holdings (instrument_id, display_name, shares, total_cost) VALUES (?, ?, ?, ?)`,
			h.InstrumentID, h.DisplayName, h.Shares.String(), h.TotalCost.String()); err != nil {
			return fmt.Errorf("failed to save holding %s: %w", h.InstrumentID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	r.logger.Debug(ctx, "Ledger snapshot saved", map[string]interface{}{
		"balance":  snap.Balance.String(),
		"holdings": len(snap.Holdings),
	})
	return nil
}

// LoadSnapshot retrieves the stored balance and holdings.
func (r *Repository) LoadSnapshot(ctx context.Context) (*ports.LedgerSnapshot, error) {
	var balanceStr string
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM ledger WHERE id = 1`).Scan(&balanceStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Never saved, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load balance: %w", err)
	}
	balance, err := decimal.NewFromString(balanceStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt balance value '%s': %w", balanceStr, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT instrument_id, display_name, shares, total_cost FROM holdings ORDER BY instrument_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query holdings: %w", err)
	}
	defer rows.Close()

	snap := &ports.LedgerSnapshot{Balance: balance}
	for rows.Next() {
		h := &domain.Holding{}
		var sharesStr, costStr string
		if err := rows.Scan(&h.InstrumentID, &h.DisplayName, &sharesStr, &costStr); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		if h.Shares, err = decimal.NewFromString(sharesStr); err != nil {
			return nil, fmt.Errorf("corrupt shares value '%s' for %s: %w", sharesStr, h.InstrumentID, err)
		}
		if h.TotalCost, err = decimal.NewFromString(costStr); err != nil {
			return nil, fmt.Errorf("corrupt total cost value '%s' for %s: %w", costStr, h.InstrumentID, err)
		}
		snap.Holdings = append(snap.Holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating holding rows: %w", err)
	}
	return snap, nil
}

// --- TradeRepository Implementation ---

// Append saves a new trade record and returns its assigned ID.
func (r *Repository) Append(ctx context.Context, trade *domain.Trade) (int64, error) {
	const query = `
	INSERT INTO trades (instrument_id, display_name, side, amount, shares, price, timestamp)
	VALUES (?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		trade.InstrumentID, trade.DisplayName, trade.Side,
		trade.Amount.String(), trade.Shares.String(), trade.Price.String(), trade.Timestamp)
	if err != nil {
		return 0, fmt.Errorf("failed to insert trade for instrument %s: %w", trade.InstrumentID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for trade %s: %w", trade.InstrumentID, err)
	}
	trade.ID = id
	r.logger.Debug(ctx, "Trade appended", map[string]interface{}{"tradeID": id, "instrument": trade.InstrumentID})
	return id, nil
}

// FindAll retrieves all trades, newest first.
func (r *Repository) FindAll(ctx context.Context) ([]*domain.Trade, error) {
	const query = `
	SELECT id, instrument_id, display_name, side, amount, shares, price, timestamp
	FROM trades ORDER BY id DESC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// FindByInstrument retrieves the most recent trades for an instrument, up to a limit.
func (r *Repository) FindByInstrument(ctx context.Context, instrumentID string, limit int) ([]*domain.Trade, error) {
	const query = `
	SELECT id, instrument_id, display_name, side, amount, shares, price, timestamp
	FROM trades WHERE instrument_id = ? ORDER BY id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, instrumentID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades for instrument %s: %w", instrumentID, err)
	}
	defer rows.Close()
	return collectTrades(rows)
}

// Count returns the number of trades in the log.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trades: %w", err)
	}
	return count, nil
}

// --- AlertRepository Implementation ---

// RegisterDevice records a device with its preferences.
func (r *Repository) RegisterDevice(ctx context.Context, prefs *domain.NotificationPreferences) error {
	if err := r.SavePreferences(ctx, prefs); err != nil {
		return err
	}
	r.logger.Debug(ctx, "Device registered", map[string]interface{}{"deviceID": prefs.DeviceID})
	return nil
}

// IsDeviceRegistered reports whether the device is known.
func (r *Repository) IsDeviceRegistered(ctx context.Context, deviceID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM devices WHERE device_id = ?`, deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check device %s: %w", deviceID, err)
	}
	return true, nil
}

// SaveRule inserts or updates an alert rule.
func (r *Repository) SaveRule(ctx context.Context, rule *domain.AlertRule) error {
	const query = `
	INSERT INTO alert_rules (id, device_id, instrument_id, display_name, type, threshold, reference_price, enabled, last_triggered, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		enabled = excluded.enabled,
		threshold = excluded.threshold,
		last_triggered = excluded.last_triggered`

	var lastTriggered sql.NullTime
	if rule.LastTriggered != nil {
		lastTriggered = sql.NullTime{Time: *rule.LastTriggered, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		rule.ID, rule.DeviceID, rule.InstrumentID, rule.DisplayName, rule.Type,
		rule.Threshold.String(), rule.ReferencePrice.String(), rule.Enabled, lastTriggered, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save alert rule %s: %w", rule.ID, err)
	}
	return nil
}

// DeleteRule removes a rule by ID.
func (r *Repository) DeleteRule(ctx context.Context, ruleID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule %s: %w", ruleID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected deleting rule %s: %w", ruleID, err)
	}
	if affected == 0 {
		return fmt.Errorf("alert rule %s: %w", ruleID, ports.ErrRuleNotFound)
	}
	return nil
}

// FindRulesByDevice retrieves all rules owned by a device, oldest first.
func (r *Repository) FindRulesByDevice(ctx context.Context, deviceID string) ([]*domain.AlertRule, error) {
	const query = `
	SELECT id, device_id, instrument_id, display_name, type, threshold, reference_price, enabled, last_triggered, created_at
	FROM alert_rules WHERE device_id = ? ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to query alert rules for device %s: %w", deviceID, err)
	}
	defer rows.Close()

	rules := make([]*domain.AlertRule, 0)
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating alert rule rows: %w", err)
	}
	return rules, nil
}

// SavePreferences persists a device's notification preferences.
func (r *Repository) SavePreferences(ctx context.Context, prefs *domain.NotificationPreferences) error {
	const query = `
	INSERT INTO devices (device_id, alerts_enabled, default_threshold, quiet_hours_start, quiet_hours_end)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(device_id) DO UPDATE SET
		alerts_enabled = excluded.alerts_enabled,
		default_threshold = excluded.default_threshold,
		quiet_hours_start = excluded.quiet_hours_start,
		quiet_hours_end = excluded.quiet_hours_end`

	_, err := r.db.ExecContext(ctx, query,
		prefs.DeviceID, prefs.AlertsEnabled, prefs.DefaultThreshold.String(),
		nullableInt(prefs.QuietHoursStart), nullableInt(prefs.QuietHoursEnd))
	if err != nil {
		return fmt.Errorf("failed to save preferences for device %s: %w", prefs.DeviceID, err)
	}
	return nil
}

// FindPreferences retrieves a device's notification preferences.
func (r *Repository) FindPreferences(ctx context.Context, deviceID string) (*domain.NotificationPreferences, error) {
	const query = `
	SELECT device_id, alerts_enabled, default_threshold, quiet_hours_start, quiet_hours_end
	FROM devices WHERE device_id = ?`

	prefs := &domain.NotificationPreferences{}
	var thresholdStr string
	var quietStart, quietEnd sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&prefs.DeviceID, &prefs.AlertsEnabled, &thresholdStr, &quietStart, &quietEnd)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not registered, not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preferences for device %s: %w", deviceID, err)
	}
	if prefs.DefaultThreshold, err = decimal.NewFromString(thresholdStr); err != nil {
		return nil, fmt.Errorf("corrupt default threshold '%s' for device %s: %w", thresholdStr, deviceID, err)
	}
	if quietStart.Valid {
		v := int(quietStart.Int64)
		prefs.QuietHoursStart = &v
	}
	if quietEnd.Valid {
		v := int(quietEnd.Int64)
		prefs.QuietHoursEnd = &v
	}
	return prefs, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.Trade struct.
func scanTrade(s scanner) (*domain.Trade, error) {
	t := &domain.Trade{}
	var side, amountStr, sharesStr, priceStr string
	err := s.Scan(&t.ID, &t.InstrumentID, &t.DisplayName, &side, &amountStr, &sharesStr, &priceStr, &t.Timestamp)
	if err != nil {
		return nil, err
	}
	t.Side = domain.TradeSide(side)
	if t.Amount, err = decimal.NewFromString(amountStr); err != nil {
		return nil, fmt.Errorf("corrupt amount '%s': %w", amountStr, err)
	}
	if t.Shares, err = decimal.NewFromString(sharesStr); err != nil {
		return nil, fmt.Errorf("corrupt shares '%s': %w", sharesStr, err)
	}
	if t.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("corrupt price '%s': %w", priceStr, err)
	}
	return t, nil
}

// collectTrades drains a result set of trade rows.
func collectTrades(rows *sql.Rows) ([]*domain.Trade, error) {
	trades := make([]*domain.Trade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// scanRule scans a row into a domain.AlertRule struct.
func scanRule(s scanner) (*domain.AlertRule, error) {
	r := &domain.AlertRule{}
	var typ, thresholdStr, refStr string
	var lastTriggered sql.NullTime
	err := s.Scan(&r.ID, &r.DeviceID, &r.InstrumentID, &r.DisplayName, &typ,
		&thresholdStr, &refStr, &r.Enabled, &lastTriggered, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.Type = domain.AlertType(typ)
	if r.Threshold, err = decimal.NewFromString(thresholdStr); err != nil {
		return nil, fmt.Errorf("corrupt threshold '%s': %w", thresholdStr, err)
	}
	if r.ReferencePrice, err = decimal.NewFromString(refStr); err != nil {
		return nil, fmt.Errorf("corrupt reference price '%s': %w", refStr, err)
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		r.LastTriggered = &t
	}
	return r, nil
}

// nullableInt converts an optional int into a driver-friendly value.
func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
