package domain

import "time"

type Tier string

const (
	TierGuest   Tier = "guest"
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Entitlement is what the entitlement backend reports for a user.
// DailyLimit <= 0 means unlimited.
type Entitlement struct {
	Tier        Tier
	DailyLimit  int
	TrialEndsAt *time.Time
}

// AccessState is the per-request view of a user's quota standing. It is
// derived, never persisted: tier comes from the entitlement backend and
// DailyCount from the user's own message history for the current local
// day (or a cached count while offline).
type AccessState struct {
	Tier        Tier
	DailyCount  int
	DailyLimit  int
	TrialEndsAt *time.Time
}

// PromptKind tells the caller which call-to-action to render on denial.
type PromptKind string

const (
	PromptSignup  PromptKind = "signup"
	PromptUpgrade PromptKind = "upgrade"
)

// Identity is the authenticated caller as reported by the auth gateway.
type Identity struct {
	UserID string
	Guest  bool
	Token  string
}

// StartOfDay returns midnight of t's calendar day in t's location,
// which bounds the "today" window for quota counting.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
