package domain

import "errors"

// Sentinel errors used throughout the application.
// Handlers translate these to HTTP status codes via a single mapError function.
var (
	// ErrTransportUnconfigured is logged when a job is dropped at enqueue time
	// because no delivery transport is configured. It is never returned to producers.
	ErrTransportUnconfigured = errors.New("delivery transport is not configured")
	// ErrDelivery wraps any transport failure during a drain cycle.
	ErrDelivery = errors.New("delivery failed")
	// ErrTemplate is returned when a message template cannot be rendered.
	ErrTemplate = errors.New("template error")
	// ErrLedgerWrite wraps storage failures while recording a sent notification.
	ErrLedgerWrite = errors.New("ledger write failed")

	ErrNoRecipients      = errors.New("at least one recipient is required")
	ErrInvalidDedupKey   = errors.New("dedup key requires subject, entity and kind")
	ErrInvalidWorkerID   = errors.New("worker id must not be empty")
	ErrDispatcherStopped = errors.New("dispatcher is stopped")
	ErrUnauthorized      = errors.New("not authorized")
	ErrInvalidBody       = errors.New("subject and body must not be empty")
	ErrBatchEmpty        = errors.New("batch must contain at least one notification")
	ErrBatchTooLarge     = errors.New("batch exceeds maximum size of 1000")
)
