package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

var _ repository.PurchaseRepository = (*purchaseRepo)(nil)

type purchaseRepo struct{ pool *pgxpool.Pool }

func NewPurchaseRepo(pool *pgxpool.Pool) *purchaseRepo {
	return &purchaseRepo{pool: pool}
}

const purchaseColumns = `order_id, account_id, product_id, product_name, amount, status, channel, external_reference, approved_at, created_at`

// Insert is the idempotency guard: zero affected rows means the order was already recorded.
func (r *purchaseRepo) Insert(ctx context.Context, tx repository.Tx, p *model.PurchaseRecord) (bool, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	const q = `
INSERT INTO purchase_records (` + purchaseColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (order_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		p.OrderID, p.AccountID, p.ProductID, p.ProductName, p.Amount,
		string(p.Status), string(p.Channel), p.ExternalReference, p.ApprovedAt, p.CreatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) FindByOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.PurchaseRecord, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchase_records WHERE order_id=$1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) FindByExternalReference(ctx context.Context, tx repository.Tx, channel model.Channel, ref string) (*model.PurchaseRecord, error) {
	q := `SELECT ` + purchaseColumns + ` FROM purchase_records WHERE channel=$1 AND external_reference=$2 ORDER BY approved_at DESC LIMIT 1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, string(channel), ref)
	if err != nil {
		return nil, err
	}
	return scanPurchase(row)
}

func (r *purchaseRepo) MarkCancelled(ctx context.Context, tx repository.Tx, orderID string) (bool, error) {
	const q = `UPDATE purchase_records SET status='CANCELLED' WHERE order_id=$1 AND status='PAID';`
	tag, err := execSQL(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *purchaseRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string) ([]*model.PurchaseRecord, error) {
	const q = `SELECT ` + purchaseColumns + ` FROM purchase_records WHERE account_id=$1 ORDER BY approved_at DESC;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.PurchaseRecord
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapErr(rows.Err())
}

func (r *purchaseRepo) DeleteApprovedBefore(ctx context.Context, tx repository.Tx, cutoff time.Time) (int64, error) {
	const q = `
DELETE FROM purchase_records p
 WHERE p.approved_at < $1
   AND NOT EXISTS (
     SELECT 1 FROM refund_requests r
      WHERE r.payment_id = p.order_id AND r.status = 'PENDING'
   );`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanPurchase(row pgx.Row) (*model.PurchaseRecord, error) {
	var (
		p               model.PurchaseRecord
		status, channel string
	)
	if err := row.Scan(&p.OrderID, &p.AccountID, &p.ProductID, &p.ProductName, &p.Amount,
		&status, &channel, &p.ExternalReference, &p.ApprovedAt, &p.CreatedAt); err != nil {
		return nil, scanErr(err)
	}
	p.Status = model.PurchaseStatus(status)
	p.Channel = model.Channel(channel)
	return &p, nil
}
