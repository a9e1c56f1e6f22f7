package domain

import "time"

// Escalation is emitted when the completion backend reports crisis risk
// at or above the configured threshold. It intentionally carries no
// message content: consumers render safety resources or write an
// anonymized log, not the conversation itself.
type Escalation struct {
	ID         string
	SessionID  string
	Severity   float64
	OccurredAt time.Time
}
