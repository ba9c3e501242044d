package model

import (
	"time"

	"course-entitlement/internal/domain"

	"github.com/google/uuid"
)

type RefundStatus string

const (
	RefundStatusPending  RefundStatus = "PENDING"
	RefundStatusApproved RefundStatus = "APPROVED"
	RefundStatusRejected RefundStatus = "REJECTED"
)

// RefundWindow is how long after approval a subscription purchase stays refundable.
const RefundWindow = 7 * 24 * time.Hour

const day = 24 * time.Hour

// RefundRequest is the account-submitted refund of one purchase. The snapshot
// fields hold the entitlement as it was right before the pessimistic downgrade.
type RefundRequest struct {
	ID                  string
	PaymentID           string // PurchaseRecord.OrderID
	AccountID           string
	Amount              int64
	CancelReason        string
	Status              RefundStatus
	SnapshotTier        Tier
	SnapshotExpiresAt   *time.Time
	SnapshotAutoRenewal bool
	RequestedAt         time.Time
	ProcessedAt         *time.Time
	ProcessedBy         *string
	AdminNote           *string
}

// NewRefundRequest snapshots the account's entitlement into a PENDING request.
func NewRefundRequest(purchase *PurchaseRecord, acc *Account, reason string, now time.Time) (*RefundRequest, error) {
	if purchase == nil || acc == nil || purchase.AccountID != acc.ID {
		return nil, domain.ErrInvalidArgument
	}
	var snapExp *time.Time
	if acc.ExpiresAt != nil {
		e := *acc.ExpiresAt
		snapExp = &e
	}
	return &RefundRequest{
		ID:                  uuid.NewString(),
		PaymentID:           purchase.OrderID,
		AccountID:           acc.ID,
		Amount:              purchase.Amount,
		CancelReason:        reason,
		Status:              RefundStatusPending,
		SnapshotTier:        acc.Tier,
		SnapshotExpiresAt:   snapExp,
		SnapshotAutoRenewal: acc.AutoRenewalEnabled,
		RequestedAt:         now.UTC(),
	}, nil
}

func (r *RefundRequest) IsPending() bool { return r.Status == RefundStatusPending }

// Restoration computes what a rejected refund gives back.
//
// A snapshot expiry still in the future is restored as-is. An expiry that has
// since passed is converted to the whole days that were left when the request
// was filed and re-applied from now; zero or fewer days leaves the account FREE.
func (r *RefundRequest) Restoration(now time.Time) (tier Tier, expiresAt *time.Time, restore bool) {
	if r.SnapshotTier == TierFree {
		return TierFree, nil, false
	}
	if r.SnapshotExpiresAt == nil {
		return r.SnapshotTier, nil, true
	}
	if r.SnapshotExpiresAt.After(now) {
		e := *r.SnapshotExpiresAt
		return r.SnapshotTier, &e, true
	}
	remaining := RemainingDays(*r.SnapshotExpiresAt, r.RequestedAt)
	if remaining <= 0 {
		return TierFree, nil, false
	}
	e := now.Add(time.Duration(remaining) * day)
	return r.SnapshotTier, &e, true
}

// RemainingDays is floor((expiresAt - from) / 24h).
func RemainingDays(expiresAt, from time.Time) int64 {
	d := expiresAt.Sub(from)
	n := int64(d / day)
	if d < 0 && d%day != 0 {
		n--
	}
	return n
}

// WithinRefundWindow reports whether now is at most RefundWindow after approvedAt.
func WithinRefundWindow(approvedAt, now time.Time) bool {
	return !now.After(approvedAt.Add(RefundWindow))
}

// UsageCounts are independent usage signals recorded since a purchase.
type UsageCounts struct {
	Completed int
	Unlocked  int
	Viewed    int
}

func (u UsageCounts) Any() bool {
	return u.Completed > 0 || u.Unlocked > 0 || u.Viewed > 0
}
