package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// Evaluator runs the per-tick alert evaluation: it reads a quote snapshot
// and the store's rules, decides which rules fire, and writes the cooldown
// timestamp back for each firing.
//
// Per rule the states are: idle (condition false), fired (condition true
// and cooldown elapsed or never fired), cooling (condition true but inside
// the cooldown window, re-checked every tick) and disabled (never
// evaluated). Rules stay enabled after firing; the cooldown alone prevents
// a sustained condition from spamming the device.
type Evaluator struct {
	logger   ports.Logger
	store    *Store
	cooldown time.Duration
	now      func() time.Time // Injectable clock for tests
}

// EvaluatorConfig holds the dependencies for an evaluator.
type EvaluatorConfig struct {
	Logger   ports.Logger
	Store    *Store
	Cooldown time.Duration // Minimum time between two firings of the same rule
}

// NewEvaluator creates an alert evaluator.
func NewEvaluator(cfg EvaluatorConfig) (*Evaluator, error) {
	if cfg.Logger == nil || cfg.Store == nil {
		return nil, fmt.Errorf("missing required dependencies for alert evaluator")
	}
	if cfg.Cooldown <= 0 {
		return nil, fmt.Errorf("cooldown must be positive: %w", ports.ErrConfigurationError)
	}
	return &Evaluator{
		logger:   cfg.Logger,
		store:    cfg.Store,
		cooldown: cfg.Cooldown,
		now:      time.Now,
	}, nil
}

// EvaluateAll runs one evaluation tick against the given quote snapshot
// and returns the alerts that fired, each paired with the triggering
// price, for the notifier to consume. The lastTriggered timestamp of every
// fired rule is persisted before the rule is reported as fired.
//
// Device-level suppression comes before any rule check: a device whose
// notification preferences disable alerts, or whose quiet-hours window
// covers the current time, produces no firings (and no cooldown updates)
// regardless of price.
func (e *Evaluator) EvaluateAll(ctx context.Context, quotes map[string]decimal.Decimal) []*domain.FiredAlert {
	now := e.now().UTC()
	var fired []*domain.FiredAlert

	for deviceID, snap := range e.store.snapshot() {
		if !snap.prefs.AlertsEnabled {
			e.logger.Debug(ctx, "Alerts disabled for device, skipping", map[string]interface{}{"deviceID": deviceID})
			continue
		}
		if snap.prefs.InQuietHours(now) {
			e.logger.Debug(ctx, "Device in quiet hours, skipping", map[string]interface{}{"deviceID": deviceID})
			continue
		}

		for _, rule := range snap.rules {
			if !rule.Enabled {
				continue
			}
			price, ok := quotes[rule.InstrumentID]
			if !ok {
				continue
			}
			if !rule.ConditionMet(price) {
				continue
			}
			if rule.InCooldown(now, e.cooldown) {
				e.logger.Debug(ctx, "Alert condition holds but rule is cooling down", map[string]interface{}{
					"ruleID":        rule.ID,
					"lastTriggered": rule.LastTriggered,
				})
				continue
			}

			if err := e.store.MarkTriggered(ctx, rule.ID, now); err != nil {
				// The rule may have been removed between snapshot and
				// write-back; skip firing rather than notify for a rule
				// that no longer exists.
				e.logger.Warn(ctx, "Skipping alert firing, cooldown write-back failed", map[string]interface{}{
					"ruleID": rule.ID,
					"reason": err.Error(),
				})
				continue
			}

			firedRule := rule.Clone()
			firedRule.LastTriggered = &now
			fired = append(fired, &domain.FiredAlert{
				Rule:        firedRule,
				ActualPrice: price,
				Timestamp:   now,
			})
			e.logger.Info(ctx, "Alert fired", map[string]interface{}{
				"ruleID":     rule.ID,
				"deviceID":   deviceID,
				"instrument": rule.InstrumentID,
				"type":       rule.Type,
				"threshold":  rule.Threshold.String(),
				"price":      price.String(),
			})
		}
	}
	return fired
}
