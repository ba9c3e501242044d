package repository

import (
	"context"
	"time"

	"course-entitlement/internal/domain/model"
)

// -----------------------------
// Accounts (entitlement store)
// -----------------------------

type AccountRepository interface {
	// Create inserts a fresh account; it does nothing if the id already exists.
	Create(ctx context.Context, tx Tx, a *model.Account) error
	// Save upserts the account row.
	Save(ctx context.Context, tx Tx, a *model.Account) error
	// FindByID loads an account; inside a transaction the row is locked for update.
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	// ListRenewalDue returns auto-renewing, non-withdrawn accounts with a stored
	// credential whose entitlement expires at or before `before`.
	ListRenewalDue(ctx context.Context, tx Tx, before time.Time, limit int) ([]*model.Account, error)
}
