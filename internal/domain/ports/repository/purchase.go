package repository

import (
	"context"
	"time"

	"course-entitlement/internal/domain/model"
)

// -----------------------------
// Purchase ledger
// -----------------------------

type PurchaseRepository interface {
	// Insert records a purchase keyed by OrderID. It reports false, without error,
	// when a record with the same OrderID already exists; that is the duplicate signal.
	Insert(ctx context.Context, tx Tx, p *model.PurchaseRecord) (bool, error)
	FindByOrderID(ctx context.Context, tx Tx, orderID string) (*model.PurchaseRecord, error)
	FindByExternalReference(ctx context.Context, tx Tx, channel model.Channel, ref string) (*model.PurchaseRecord, error)
	// MarkCancelled moves PAID to CANCELLED and reports whether this call did it.
	MarkCancelled(ctx context.Context, tx Tx, orderID string) (bool, error)
	ListByAccount(ctx context.Context, tx Tx, accountID string) ([]*model.PurchaseRecord, error)
	// DeleteApprovedBefore removes ledger rows past retention that have no pending refund.
	DeleteApprovedBefore(ctx context.Context, tx Tx, cutoff time.Time) (int64, error)
}
