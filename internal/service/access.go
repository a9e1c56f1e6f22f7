package service

import "github.com/set-night/solace/internal/domain"

// Limits is the canonical daily-quota table per tier. Premium is
// unlimited and has no entry. Values come from config, not code.
type Limits struct {
	Guest int
	Free  int
}

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
	Prompt  domain.PromptKind
}

// Evaluate decides whether a send is allowed for the given access
// state. Pure and side-effect free: it sees only the derived state, so
// a tier downgrade naturally applies from the next send onward.
// DailyLimit <= 0 means unlimited.
func Evaluate(state domain.AccessState) Decision {
	if state.Tier == domain.TierPremium || state.DailyLimit <= 0 {
		return Decision{Allowed: true}
	}
	if state.DailyCount >= state.DailyLimit {
		prompt := domain.PromptUpgrade
		if state.Tier == domain.TierGuest {
			prompt = domain.PromptSignup
		}
		return Decision{
			Allowed: false,
			Reason:  "daily message limit reached",
			Prompt:  prompt,
		}
	}
	return Decision{Allowed: true}
}
