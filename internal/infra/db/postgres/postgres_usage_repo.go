package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

var _ repository.UsageRepository = (*usageRepo)(nil)

// usageRepo reads usage signals owned by the course-interaction services.
type usageRepo struct{ pool *pgxpool.Pool }

func NewUsageRepo(pool *pgxpool.Pool) *usageRepo {
	return &usageRepo{pool: pool}
}

func (r *usageRepo) CountSince(ctx context.Context, tx repository.Tx, accountID string, since time.Time) (model.UsageCounts, error) {
	const q = `
SELECT
  (SELECT COUNT(*) FROM resource_completions WHERE account_id=$1 AND created_at >= $2),
  (SELECT COUNT(*) FROM unlock_grants        WHERE account_id=$1 AND granted_at >= $2),
  (SELECT COUNT(*) FROM resource_views       WHERE account_id=$1 AND created_at >= $2);`
	var c model.UsageCounts
	row, err := pickRow(ctx, r.pool, tx, q, accountID, since)
	if err != nil {
		return c, err
	}
	if err := row.Scan(&c.Completed, &c.Unlocked, &c.Viewed); err != nil {
		return model.UsageCounts{}, scanErr(err)
	}
	return c, nil
}
