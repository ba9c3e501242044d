package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

const accountColumns = `id, tier, expires_at, auto_renewal_enabled, billing_credential, bonus_credits, withdrawn, created_at, updated_at`

func (r *accountRepo) Create(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO NOTHING;`
	_, err := execSQL(ctx, r.pool, tx, q, accountArgs(a)...)
	return err
}

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO accounts (` + accountColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (id) DO UPDATE SET
  tier=$2, expires_at=$3, auto_renewal_enabled=$4, billing_credential=$5,
  bonus_credits=$6, withdrawn=$7, updated_at=$9;`
	_, err := execSQL(ctx, r.pool, tx, q, accountArgs(a)...)
	return err
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanAccount(row)
}

func (r *accountRepo) ListRenewalDue(ctx context.Context, tx repository.Tx, before time.Time, limit int) ([]*model.Account, error) {
	if limit <= 0 {
		limit = 500
	}
	const q = `
SELECT ` + accountColumns + `
  FROM accounts
 WHERE auto_renewal_enabled
   AND NOT withdrawn
   AND billing_credential IS NOT NULL AND billing_credential <> ''
   AND expires_at IS NOT NULL AND expires_at <= $1
 ORDER BY expires_at ASC, id ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, before, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, mapErr(rows.Err())
}

func accountArgs(a *model.Account) []interface{} {
	return []interface{}{
		a.ID, string(a.Tier), a.ExpiresAt, a.AutoRenewalEnabled, a.BillingCredential,
		a.BonusCredits, a.Withdrawn, a.CreatedAt, a.UpdatedAt,
	}
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var (
		a    model.Account
		tier string
	)
	if err := row.Scan(&a.ID, &tier, &a.ExpiresAt, &a.AutoRenewalEnabled, &a.BillingCredential,
		&a.BonusCredits, &a.Withdrawn, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, scanErr(err)
	}
	a.Tier = model.Tier(tier)
	return &a, nil
}
