package service

import (
	"context"
	"fmt"
	"time"

	"github.com/set-night/solace/internal/domain"
	"github.com/set-night/solace/internal/repository"
)

// EntitlementStore is the subset of the Postgres store used for
// entitlement lookups.
type EntitlementStore interface {
	GetEntitlement(ctx context.Context, userID string) (*repository.EntitlementRow, error)
}

// EntitlementsService implements domain.EntitlementService on top of the
// entitlements table plus the configured limits table. A missing row
// means the free tier; an unexpired premium or trial period means
// premium. Per-user daily_limit overrides the table default.
type EntitlementsService struct {
	store  EntitlementStore
	limits Limits
	now    func() time.Time
}

func NewEntitlementsService(store EntitlementStore, limits Limits) *EntitlementsService {
	return &EntitlementsService{store: store, limits: limits, now: time.Now}
}

func (s *EntitlementsService) CurrentEntitlement(ctx context.Context, userID string) (*domain.Entitlement, error) {
	row, err := s.store.GetEntitlement(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("current entitlement: %w", err)
	}

	ent := &domain.Entitlement{Tier: domain.TierFree, DailyLimit: s.limits.Free}
	if row == nil {
		return ent, nil
	}

	now := s.now()
	if row.PremiumUntil != nil && row.PremiumUntil.After(now) {
		ent.Tier = domain.TierPremium
		ent.DailyLimit = 0
	} else if row.TrialEndsAt != nil && row.TrialEndsAt.After(now) {
		ent.Tier = domain.TierPremium
		ent.DailyLimit = 0
		ent.TrialEndsAt = row.TrialEndsAt
	}
	if ent.Tier == domain.TierFree && row.DailyLimit != nil {
		ent.DailyLimit = *row.DailyLimit
	}
	return ent, nil
}
