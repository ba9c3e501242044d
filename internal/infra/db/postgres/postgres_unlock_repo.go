package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

var _ repository.UnlockRepository = (*unlockRepo)(nil)

type unlockRepo struct{ pool *pgxpool.Pool }

func NewUnlockRepo(pool *pgxpool.Pool) *unlockRepo {
	return &unlockRepo{pool: pool}
}

func (r *unlockRepo) Grant(ctx context.Context, tx repository.Tx, g *model.UnlockGrant) error {
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO unlock_grants (account_id, resource_id, granted_at)
VALUES ($1,$2,$3)
ON CONFLICT (account_id, resource_id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, g.AccountID, g.ResourceID, g.GrantedAt)
	return err
}

func (r *unlockRepo) ListGrants(ctx context.Context, tx repository.Tx, accountID string) ([]*model.UnlockGrant, error) {
	const q = `SELECT account_id, resource_id, granted_at FROM unlock_grants WHERE account_id=$1 ORDER BY resource_id;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.UnlockGrant
	for rows.Next() {
		var g model.UnlockGrant
		if err := rows.Scan(&g.AccountID, &g.ResourceID, &g.GrantedAt); err != nil {
			return nil, scanErr(err)
		}
		out = append(out, &g)
	}
	return out, mapErr(rows.Err())
}

func (r *unlockRepo) SaveIntent(ctx context.Context, tx repository.Tx, i *model.UnlockIntent) error {
	const q = `
INSERT INTO unlock_intents (id, account_id, resource_id, product_id, status, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO UPDATE SET status=$5;`
	_, err := execSQL(ctx, r.pool, tx, q, i.ID, i.AccountID, i.ResourceID, i.ProductID, string(i.Status), i.CreatedAt)
	return err
}

func (r *unlockRepo) FindIntent(ctx context.Context, tx repository.Tx, id string) (*model.UnlockIntent, error) {
	q := `SELECT id, account_id, resource_id, product_id, status, created_at FROM unlock_intents WHERE id=$1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanIntent(row)
}

// CompleteIntent is the consume-once guard for unlock intents.
func (r *unlockRepo) CompleteIntent(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `UPDATE unlock_intents SET status='COMPLETED' WHERE id=$1 AND status='PENDING';`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *unlockRepo) DeleteStaleIntents(ctx context.Context, tx repository.Tx, pendingBefore, completedBefore time.Time) (int64, error) {
	const q = `
DELETE FROM unlock_intents
 WHERE (status='PENDING' AND created_at < $1)
    OR (status='COMPLETED' AND created_at < $2);`
	tag, err := execSQL(ctx, r.pool, tx, q, pendingBefore, completedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanIntent(row pgx.Row) (*model.UnlockIntent, error) {
	var (
		i      model.UnlockIntent
		status string
	)
	if err := row.Scan(&i.ID, &i.AccountID, &i.ResourceID, &i.ProductID, &status, &i.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	i.Status = model.IntentStatus(status)
	return &i, nil
}
