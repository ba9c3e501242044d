package model

import (
	"time"

	"course-entitlement/internal/domain"
)

type Tier string

const (
	TierFree    Tier = "FREE"
	TierBasic   Tier = "BASIC"
	TierPremium Tier = "PREMIUM"
)

func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierPremium:
		return true
	}
	return false
}

// Account is the entitlement root. Only the confirmation, refund and renewal
// flows mutate it, always under a row lock.
type Account struct {
	ID                 string
	Tier               Tier
	ExpiresAt          *time.Time
	AutoRenewalEnabled bool
	BillingCredential  *string // AES-GCM ciphertext, never plaintext
	BonusCredits       int64
	Withdrawn          bool
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewAccount(id string) (*Account, error) {
	if id == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now().UTC()
	return &Account{
		ID:        id,
		Tier:      TierFree,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// AddCredits grants one-off bonus credits.
func (a *Account) AddCredits(n int64) {
	if n <= 0 {
		return
	}
	a.BonusCredits += n
}

// ReclaimCredits removes up to n credits and returns how many were actually
// reclaimed. The balance never goes below zero.
func (a *Account) ReclaimCredits(n int64) int64 {
	if n <= 0 || a.BonusCredits <= 0 {
		return 0
	}
	take := n
	if a.BonusCredits < take {
		take = a.BonusCredits
	}
	a.BonusCredits -= take
	return take
}

// ExtendSubscription sets the tier and moves expiry to max(now, expiry) + period.
func (a *Account) ExtendSubscription(tier Tier, period time.Duration, now time.Time) {
	base := now
	if a.ExpiresAt != nil && a.ExpiresAt.After(now) {
		base = *a.ExpiresAt
	}
	exp := base.Add(period)
	a.ExpiresAt = &exp
	a.Tier = tier
	a.AutoRenewalEnabled = true
}

// Downgrade drops the account to FREE with no expiry and renewal disabled.
func (a *Account) Downgrade() {
	a.Tier = TierFree
	a.ExpiresAt = nil
	a.AutoRenewalEnabled = false
}

// ActiveTier reports the tier that is in effect at the given instant.
func (a *Account) ActiveTier(now time.Time) Tier {
	if a.Tier == TierFree {
		return TierFree
	}
	if a.ExpiresAt != nil && !a.ExpiresAt.After(now) {
		return TierFree
	}
	return a.Tier
}

func (a *Account) HasBillingCredential() bool {
	return a.BillingCredential != nil && *a.BillingCredential != ""
}

// Entitlement is the read model returned to callers after any confirmation.
type Entitlement struct {
	AccountID          string     `json:"account_id"`
	Tier               Tier       `json:"tier"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
	AutoRenewalEnabled bool       `json:"auto_renewal_enabled"`
	BonusCredits       int64      `json:"bonus_credits"`
	HasBillingKey      bool       `json:"has_billing_credential"`
	UnlockedResources  []string   `json:"unlocked_resources,omitempty"`
}

func (a *Account) Entitlement() Entitlement {
	e := Entitlement{
		AccountID:          a.ID,
		Tier:               a.Tier,
		AutoRenewalEnabled: a.AutoRenewalEnabled,
		BonusCredits:       a.BonusCredits,
		HasBillingKey:      a.HasBillingCredential(),
	}
	if a.ExpiresAt != nil {
		exp := *a.ExpiresAt
		e.ExpiresAt = &exp
	}
	return e
}
