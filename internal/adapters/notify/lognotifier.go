package notify

import (
	"context"
	"fmt"

	"papertrader/internal/domain"
	"papertrader/internal/ports"
)

// LogNotifier implements the ports.Notifier interface by structured-logging
// fired alerts. The actual push transport is outside the core; this is the
// default delivery used by the binaries.
type LogNotifier struct {
	logger ports.Logger
}

// New creates a logging notifier.
func New(logger ports.Logger) (*LogNotifier, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for notifier")
	}
	return &LogNotifier{logger: logger}, nil
}

// Notify logs the fired alert payload.
func (n *LogNotifier) Notify(ctx context.Context, alert *domain.FiredAlert) error {
	n.logger.Info(ctx, "ALERT", map[string]interface{}{
		"deviceID":   alert.Rule.DeviceID,
		"instrument": alert.Rule.InstrumentID,
		"type":       alert.Rule.Type,
		"threshold":  alert.Rule.Threshold.String(),
		"price":      alert.ActualPrice.String(),
		"timestamp":  alert.Timestamp,
	})
	return nil
}
