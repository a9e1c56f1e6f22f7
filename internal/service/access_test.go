package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/set-night/solace/internal/domain"
)

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		state   domain.AccessState
		allowed bool
		prompt  domain.PromptKind
	}{
		{
			name:    "guest under limit",
			state:   domain.AccessState{Tier: domain.TierGuest, DailyCount: 0, DailyLimit: 1},
			allowed: true,
		},
		{
			name:    "guest at limit",
			state:   domain.AccessState{Tier: domain.TierGuest, DailyCount: 1, DailyLimit: 1},
			allowed: false,
			prompt:  domain.PromptSignup,
		},
		{
			name:    "free under limit",
			state:   domain.AccessState{Tier: domain.TierFree, DailyCount: 2, DailyLimit: 3},
			allowed: true,
		},
		{
			name:    "free at limit",
			state:   domain.AccessState{Tier: domain.TierFree, DailyCount: 3, DailyLimit: 3},
			allowed: false,
			prompt:  domain.PromptUpgrade,
		},
		{
			name:    "free over limit",
			state:   domain.AccessState{Tier: domain.TierFree, DailyCount: 10, DailyLimit: 3},
			allowed: false,
			prompt:  domain.PromptUpgrade,
		},
		{
			name:    "premium ignores count",
			state:   domain.AccessState{Tier: domain.TierPremium, DailyCount: 1000},
			allowed: true,
		},
		{
			name:    "zero limit means unlimited",
			state:   domain.AccessState{Tier: domain.TierFree, DailyCount: 50, DailyLimit: 0},
			allowed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.state)
			assert.Equal(t, tt.allowed, d.Allowed)
			if !tt.allowed {
				assert.Equal(t, tt.prompt, d.Prompt)
				assert.NotEmpty(t, d.Reason)
			}
		})
	}
}
