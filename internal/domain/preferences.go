package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationPreferences holds per-device notification toggles.
// Read by the evaluator to decide whether alert notifications are
// suppressed entirely, independent of individual rule state.
type NotificationPreferences struct {
	DeviceID         string          // Owning device
	AlertsEnabled    bool            // Master switch for price-alert notifications
	DefaultThreshold decimal.Decimal // Default percent threshold offered for new percent_change rules
	QuietHoursStart  *int            // Hour of day [0,24) quiet window opens (nil = no quiet hours)
	QuietHoursEnd    *int            // Hour of day [0,24) quiet window closes
}

// DefaultPreferences returns the preferences a freshly registered device starts with.
func DefaultPreferences(deviceID string) *NotificationPreferences {
	return &NotificationPreferences{
		DeviceID:         deviceID,
		AlertsEnabled:    true,
		DefaultThreshold: decimal.NewFromInt(5),
	}
}

// InQuietHours reports whether the given time falls inside the configured
// quiet-hours window. Windows may wrap midnight (e.g. 22 -> 7). A device
// with no window configured is never quiet.
func (p *NotificationPreferences) InQuietHours(now time.Time) bool {
	if p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}
	start, end := *p.QuietHoursStart, *p.QuietHoursEnd
	if start == end {
		return false
	}
	hour := now.Hour()
	if start < end {
		return hour >= start && hour < end
	}
	// Window wraps midnight.
	return hour >= start || hour < end
}

// Clone returns a copy of the preferences.
func (p *NotificationPreferences) Clone() *NotificationPreferences {
	c := *p
	if p.QuietHoursStart != nil {
		v := *p.QuietHoursStart
		c.QuietHoursStart = &v
	}
	if p.QuietHoursEnd != nil {
		v := *p.QuietHoursEnd
		c.QuietHoursEnd = &v
	}
	return &c
}
