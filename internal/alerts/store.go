package alerts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// Store owns the alert rules and notification preferences of registered
// devices. All mutations are persisted write-through, and the evaluator's
// lastTriggered write-back goes through the same lock as ToggleAlert and
// RemoveAlert, so the two can never race on a rule.
type Store struct {
	logger    ports.Logger
	repo      ports.AlertRepository
	quotes    ports.QuoteSource
	maxAlerts int

	mu      sync.RWMutex
	devices map[string]*deviceState
}

// deviceState bundles one device's preferences and rules.
type deviceState struct {
	prefs *domain.NotificationPreferences
	rules map[string]*domain.AlertRule
}

// StoreConfig holds the dependencies and limits for an alert store.
type StoreConfig struct {
	Logger    ports.Logger
	Repo      ports.AlertRepository
	Quotes    ports.QuoteSource // Used to capture the percent_change reference price at rule creation
	MaxAlerts int               // Per-device rule cap
}

// NewStore creates an alert store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Logger == nil || cfg.Repo == nil || cfg.Quotes == nil {
		return nil, fmt.Errorf("missing required dependencies for alert store")
	}
	if cfg.MaxAlerts <= 0 {
		return nil, fmt.Errorf("MaxAlerts must be positive: %w", ports.ErrConfigurationError)
	}
	return &Store{
		logger:    cfg.Logger,
		repo:      cfg.Repo,
		quotes:    cfg.Quotes,
		maxAlerts: cfg.MaxAlerts,
		devices:   make(map[string]*deviceState),
	}, nil
}

// RegisterDevice makes a device known to the store, loading its persisted
// rules and preferences when present and creating defaults otherwise.
// Registering an already-registered device is a no-op.
func (s *Store) RegisterDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		return fmt.Errorf("device ID must not be empty: %w", ports.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; ok {
		return nil
	}

	prefs, err := s.repo.FindPreferences(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load preferences for device %s: %w", deviceID, err)
	}
	if prefs == nil {
		prefs = domain.DefaultPreferences(deviceID)
		if err := s.repo.RegisterDevice(ctx, prefs); err != nil {
			return fmt.Errorf("failed to register device %s: %w", deviceID, err)
		}
		s.logger.Info(ctx, "Device registered", map[string]interface{}{"deviceID": deviceID})
	}

	state := &deviceState{prefs: prefs, rules: make(map[string]*domain.AlertRule)}
	rules, err := s.repo.FindRulesByDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("failed to load alert rules for device %s: %w", deviceID, err)
	}
	for _, r := range rules {
		state.rules[r.ID] = r
	}
	s.devices[deviceID] = state
	s.logger.Info(ctx, "Device state loaded", map[string]interface{}{"deviceID": deviceID, "rules": len(rules)})
	return nil
}

// AddAlert creates a new enabled rule for the device. For percent_change
// rules the current price is captured as the baseline the rule is measured
// against for its whole lifetime.
func (s *Store) AddAlert(ctx context.Context, deviceID, instrumentID, displayName string, typ domain.AlertType, threshold decimal.Decimal) (*domain.AlertRule, error) {
	if !typ.IsValid() {
		return nil, fmt.Errorf("unknown alert type %q: %w", typ, ports.ErrInvalidInput)
	}
	if !threshold.IsPositive() {
		return nil, fmt.Errorf("threshold must be positive, got %s: %w", threshold.String(), ports.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("device %s: %w", deviceID, ports.ErrDeviceNotRegistered)
	}
	if len(state.rules) >= s.maxAlerts {
		return nil, fmt.Errorf("device %s has %d alerts (max %d): %w", deviceID, len(state.rules), s.maxAlerts, ports.ErrMaxAlertsReached)
	}

	rule := &domain.AlertRule{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		InstrumentID: instrumentID,
		DisplayName:  displayName,
		Type:         typ,
		Threshold:    threshold,
		Enabled:      true,
		CreatedAt:    time.Now().UTC(),
	}
	if typ == domain.AlertPercentChange {
		price, err := s.quotes.GetPrice(ctx, instrumentID)
		if err != nil {
			return nil, fmt.Errorf("cannot capture reference price for %s: %w", instrumentID, err)
		}
		rule.ReferencePrice = price
	}

	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to persist alert rule: %w", err)
	}
	state.rules[rule.ID] = rule

	s.logger.Info(ctx, "Alert rule created", map[string]interface{}{
		"ruleID":     rule.ID,
		"deviceID":   deviceID,
		"instrument": instrumentID,
		"type":       typ,
		"threshold":  threshold.String(),
	})
	return rule.Clone(), nil
}

// RemoveAlert deletes a rule by ID. Removal is idempotent: it returns
// whether a rule was actually deleted, and a missing rule is not an error.
func (s *Store) RemoveAlert(ctx context.Context, ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, rule := s.findLocked(ruleID)
	if rule == nil {
		return false
	}
	if err := s.repo.DeleteRule(ctx, ruleID); err != nil {
		s.logger.Error(ctx, err, "Failed to delete alert rule from repository", map[string]interface{}{"ruleID": ruleID})
		return false
	}
	delete(state.rules, ruleID)
	s.logger.Info(ctx, "Alert rule removed", map[string]interface{}{"ruleID": ruleID})
	return true
}

// ToggleAlert flips a rule's enabled flag without resetting its cooldown.
// Returns whether the rule was found.
func (s *Store) ToggleAlert(ctx context.Context, ruleID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rule := s.findLocked(ruleID)
	if rule == nil {
		return false
	}
	rule.Enabled = !rule.Enabled
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		// Roll the flip back so memory and storage stay in sync.
		rule.Enabled = !rule.Enabled
		s.logger.Error(ctx, err, "Failed to persist alert toggle", map[string]interface{}{"ruleID": ruleID})
		return false
	}
	s.logger.Info(ctx, "Alert rule toggled", map[string]interface{}{"ruleID": ruleID, "enabled": rule.Enabled})
	return true
}

// MarkTriggered records a firing time on a rule and persists it. Called by
// the evaluator under the store lock so it cannot race a concurrent toggle
// or removal of the same rule.
func (s *Store) MarkTriggered(ctx context.Context, ruleID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, rule := s.findLocked(ruleID)
	if rule == nil {
		return fmt.Errorf("rule %s: %w", ruleID, ports.ErrRuleNotFound)
	}
	t := at.UTC()
	rule.LastTriggered = &t
	if err := s.repo.SaveRule(ctx, rule); err != nil {
		return fmt.Errorf("failed to persist lastTriggered for rule %s: %w", ruleID, err)
	}
	return nil
}

// RulesForDevice returns copies of a device's rules, oldest first.
func (s *Store) RulesForDevice(deviceID string) []*domain.AlertRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.devices[deviceID]
	if !ok {
		return nil
	}
	out := make([]*domain.AlertRule, 0, len(state.rules))
	for _, r := range state.rules {
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Preferences returns a copy of a device's notification preferences,
// or nil if the device is not registered.
func (s *Store) Preferences(deviceID string) *domain.NotificationPreferences {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if state, ok := s.devices[deviceID]; ok {
		return state.prefs.Clone()
	}
	return nil
}

// UpdatePreferences replaces a device's notification preferences.
func (s *Store) UpdatePreferences(ctx context.Context, prefs *domain.NotificationPreferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.devices[prefs.DeviceID]
	if !ok {
		return fmt.Errorf("device %s: %w", prefs.DeviceID, ports.ErrDeviceNotRegistered)
	}
	if err := s.repo.SavePreferences(ctx, prefs); err != nil {
		return fmt.Errorf("failed to persist preferences: %w", err)
	}
	state.prefs = prefs.Clone()
	s.logger.Info(ctx, "Notification preferences updated", map[string]interface{}{"deviceID": prefs.DeviceID})
	return nil
}

// InstrumentIDs returns the distinct instruments referenced by any rule,
// sorted. The scheduler uses this to size the per-tick quote snapshot.
func (s *Store) InstrumentIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	for _, state := range s.devices {
		for _, r := range state.rules {
			seen[r.InstrumentID] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// snapshot returns per-device copies of preferences and rules for one
// evaluation tick.
func (s *Store) snapshot() map[string]*deviceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*deviceSnapshot, len(s.devices))
	for id, state := range s.devices {
		snap := &deviceSnapshot{prefs: state.prefs.Clone()}
		for _, r := range state.rules {
			snap.rules = append(snap.rules, r.Clone())
		}
		sort.Slice(snap.rules, func(i, j int) bool { return snap.rules[i].CreatedAt.Before(snap.rules[j].CreatedAt) })
		out[id] = snap
	}
	return out
}

// deviceSnapshot is a point-in-time copy of one device's state.
type deviceSnapshot struct {
	prefs *domain.NotificationPreferences
	rules []*domain.AlertRule
}

// findLocked locates a rule by ID across devices. Callers must hold s.mu.
func (s *Store) findLocked(ruleID string) (*deviceState, *domain.AlertRule) {
	for _, state := range s.devices {
		if rule, ok := state.rules[ruleID]; ok {
			return state, rule
		}
	}
	return nil, nil
}
