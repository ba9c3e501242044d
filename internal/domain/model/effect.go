package model

import (
	"time"

	"course-entitlement/internal/domain"
)

// EntitlementEffect is the single change a confirmed purchase applies to an
// account. Every channel funnels into one of the three variants below.
type EntitlementEffect interface {
	Kind() EffectKind
	effect()
}

type CreditEffect struct {
	Credits int64
}

type SubscriptionExtendEffect struct {
	Tier   Tier
	Period time.Duration
}

type ResourceUnlockEffect struct {
	ResourceID string
	IntentID   string
}

func (CreditEffect) Kind() EffectKind             { return EffectCredit }
func (SubscriptionExtendEffect) Kind() EffectKind { return EffectSubscription }
func (ResourceUnlockEffect) Kind() EffectKind     { return EffectResourceUnlock }

func (CreditEffect) effect()             {}
func (SubscriptionExtendEffect) effect() {}
func (ResourceUnlockEffect) effect()     {}

// EffectFor builds the effect of buying p. Resource unlocks need the intent
// that names the resource.
func (p *Product) EffectFor(intent *UnlockIntent) (EntitlementEffect, error) {
	switch p.Kind {
	case EffectCredit:
		return CreditEffect{Credits: p.Credits}, nil
	case EffectSubscription:
		return SubscriptionExtendEffect{Tier: p.Tier, Period: p.Period()}, nil
	case EffectResourceUnlock:
		if intent == nil {
			return nil, domain.ErrInvalidIntent
		}
		if p.ResourceID != "" && p.ResourceID != intent.ResourceID {
			return nil, domain.ErrInvalidIntent
		}
		return ResourceUnlockEffect{ResourceID: intent.ResourceID, IntentID: intent.ID}, nil
	}
	return nil, domain.ErrUnknownProduct
}
