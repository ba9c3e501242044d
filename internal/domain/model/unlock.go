package model

import (
	"time"

	"course-entitlement/internal/domain"

	"github.com/google/uuid"
)

// UnlockGrant permanently unlocks one resource for one account.
type UnlockGrant struct {
	AccountID  string
	ResourceID string
	GrantedAt  time.Time
}

type IntentStatus string

const (
	IntentStatusPending   IntentStatus = "PENDING"
	IntentStatusCompleted IntentStatus = "COMPLETED"
)

// UnlockIntent pre-authorizes a one-off in-app purchase of a resource and is
// consumed exactly once by the confirmation that pays for it.
type UnlockIntent struct {
	ID         string
	AccountID  string
	ResourceID string
	ProductID  string
	Status     IntentStatus
	CreatedAt  time.Time
}

func NewUnlockIntent(accountID, resourceID, productID string) (*UnlockIntent, error) {
	if accountID == "" || resourceID == "" || productID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &UnlockIntent{
		ID:         uuid.NewString(),
		AccountID:  accountID,
		ResourceID: resourceID,
		ProductID:  productID,
		Status:     IntentStatusPending,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Usable reports whether the intent may be consumed by accountID buying productID.
// A zero ttl disables expiry.
func (i *UnlockIntent) Usable(accountID, productID string, ttl time.Duration, now time.Time) bool {
	if i == nil || i.Status != IntentStatusPending {
		return false
	}
	if i.AccountID != accountID || i.ProductID != productID {
		return false
	}
	if ttl > 0 && now.Sub(i.CreatedAt) > ttl {
		return false
	}
	return true
}
