package ports

import (
	"context"

	"papertrader/internal/domain"
)

// Notifier defines the interface for delivering fired alerts to a device.
// The delivery mechanism (push transport, payload format) is an external
// concern; the core only hands over the fired alert.
type Notifier interface {
	// Notify delivers a single fired alert. Failures are reported but do
	// not roll back the firing: the rule's cooldown still starts.
	Notify(ctx context.Context, alert *domain.FiredAlert) error
}
