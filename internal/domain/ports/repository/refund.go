package repository

import (
	"context"
	"time"

	"course-entitlement/internal/domain/model"
)

type RefundRepository interface {
	// Insert creates the request; false means one already exists for the payment.
	Insert(ctx context.Context, tx Tx, r *model.RefundRequest) (bool, error)
	FindByID(ctx context.Context, tx Tx, id string) (*model.RefundRequest, error)
	// Resolve moves a PENDING request to a terminal status and reports whether this call did it.
	Resolve(ctx context.Context, tx Tx, id string, status model.RefundStatus, processedAt time.Time, processedBy, note string) (bool, error)
	ListByStatus(ctx context.Context, tx Tx, status model.RefundStatus, limit int) ([]*model.RefundRequest, error)
}

// UsageRepository reads the usage signals recorded by course-interaction collaborators.
type UsageRepository interface {
	CountSince(ctx context.Context, tx Tx, accountID string, since time.Time) (model.UsageCounts, error)
}
