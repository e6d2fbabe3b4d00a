package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors;
// core services return them inside result objects so callers can branch and
// show the message to the user. None of them is process-fatal.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrNotFound           = errors.New("resource not found")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Trade Validation Errors
	ErrInvalidInput        = errors.New("invalid trade input")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInsufficientShares  = errors.New("insufficient shares")

	// Alert Store Errors
	ErrDeviceNotRegistered = errors.New("device is not registered")
	ErrMaxAlertsReached    = errors.New("maximum number of alerts reached for device")
	ErrRuleNotFound        = errors.New("alert rule not found")

	// Quote Source Errors
	ErrQuoteUnavailable = errors.New("no quote available for instrument")
	ErrFeedUnavailable  = errors.New("quote feed is unavailable")
	ErrRateLimited      = errors.New("quote feed rate limit exceeded")

	// Database Specific Errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
	ErrDeleteFailed = errors.New("database delete failed")
)
