package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertRule represents one user-defined price condition on one instrument.
type AlertRule struct {
	ID             string          // Unique rule identifier (UUID)
	DeviceID       string          // Owning device
	InstrumentID   string          // Instrument the condition applies to
	DisplayName    string          // Human-readable instrument name
	Type           AlertType       // above, below or percent_change
	Threshold      decimal.Decimal // Euros for above/below, percent for percent_change; always > 0
	ReferencePrice decimal.Decimal // Baseline for percent_change, captured at rule creation
	Enabled        bool            // Disabled rules are retained but never evaluated
	LastTriggered  *time.Time      // Time of the most recent firing (nil = never fired)
	CreatedAt      time.Time       // Rule creation time (UTC)
}

// ConditionMet reports whether the rule's condition holds for the given
// current price. It does not consider cooldown or the enabled flag.
func (r *AlertRule) ConditionMet(price decimal.Decimal) bool {
	switch r.Type {
	case AlertAbove:
		return price.GreaterThanOrEqual(r.Threshold)
	case AlertBelow:
		return price.LessThanOrEqual(r.Threshold)
	case AlertPercentChange:
		if r.ReferencePrice.IsZero() {
			return false
		}
		movePct := price.Sub(r.ReferencePrice).Div(r.ReferencePrice).Abs().Mul(decimal.NewFromInt(100))
		return movePct.GreaterThanOrEqual(r.Threshold)
	}
	return false
}

// InCooldown reports whether the rule fired within the cooldown window
// ending at now. A rule that never fired is never in cooldown.
func (r *AlertRule) InCooldown(now time.Time, cooldown time.Duration) bool {
	if r.LastTriggered == nil {
		return false
	}
	return now.Sub(*r.LastTriggered) < cooldown
}

// Clone returns a copy of the rule, including the LastTriggered timestamp.
func (r *AlertRule) Clone() *AlertRule {
	c := *r
	if r.LastTriggered != nil {
		t := *r.LastTriggered
		c.LastTriggered = &t
	}
	return &c
}

// FiredAlert pairs a rule that fired with the price that triggered it.
// This is the payload handed to the Notifier.
type FiredAlert struct {
	Rule        *AlertRule      // The rule that fired (snapshot at firing time)
	ActualPrice decimal.Decimal // The quote that satisfied the condition
	Timestamp   time.Time       // Evaluation tick time (UTC)
}
