package config

import "time"

const (
	// Completion request timeout; past this the fallback reply is used.
	CompletionTimeout = 30 * time.Second

	// Store and entitlement call timeout; past this the write is queued.
	StoreTimeout = 8 * time.Second

	// Context window sent to the completion backend (messages).
	ContextWindowSize = 10

	// Crisis risk at or above this triggers escalation.
	CrisisThreshold = 0.5

	// Message text limits
	MaxMessageLen = 4000

	// Offline queue drain
	DrainInterval    = 30 * time.Second
	DrainOpRetries   = 2
	DrainRetryBase   = 200 * time.Millisecond
	QueueBackoffBase = 5 * time.Second
	QueueBackoffCap  = 10 * time.Minute

	// JWT
	GuestTokenTTL = 30 * 24 * time.Hour
	UserTokenTTL  = 7 * 24 * time.Hour
)
