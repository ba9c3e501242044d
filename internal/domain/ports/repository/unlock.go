package repository

import (
	"context"
	"time"

	"course-entitlement/internal/domain/model"
)

// UnlockRepository stores permanent grants and the intents that lead to them.
type UnlockRepository interface {
	// Grant is an idempotent upsert on (account, resource).
	Grant(ctx context.Context, tx Tx, g *model.UnlockGrant) error
	ListGrants(ctx context.Context, tx Tx, accountID string) ([]*model.UnlockGrant, error)

	SaveIntent(ctx context.Context, tx Tx, i *model.UnlockIntent) error
	FindIntent(ctx context.Context, tx Tx, id string) (*model.UnlockIntent, error)
	// CompleteIntent flips PENDING to COMPLETED and reports whether this call did it.
	CompleteIntent(ctx context.Context, tx Tx, id string) (bool, error)
	DeleteStaleIntents(ctx context.Context, tx Tx, pendingBefore, completedBefore time.Time) (int64, error)
}
