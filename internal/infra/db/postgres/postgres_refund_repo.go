package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

var _ repository.RefundRepository = (*refundRepo)(nil)

type refundRepo struct{ pool *pgxpool.Pool }

func NewRefundRepo(pool *pgxpool.Pool) *refundRepo {
	return &refundRepo{pool: pool}
}

const refundColumns = `id, payment_id, account_id, amount, cancel_reason, status, snapshot_tier, snapshot_expires_at,
  snapshot_auto_renewal, requested_at, processed_at, processed_by, admin_note`

func (r *refundRepo) Insert(ctx context.Context, tx repository.Tx, rf *model.RefundRequest) (bool, error) {
	const q = `
INSERT INTO refund_requests (` + refundColumns + `)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (payment_id) DO NOTHING;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		rf.ID, rf.PaymentID, rf.AccountID, rf.Amount, rf.CancelReason, string(rf.Status),
		string(rf.SnapshotTier), rf.SnapshotExpiresAt, rf.SnapshotAutoRenewal, rf.RequestedAt,
		rf.ProcessedAt, rf.ProcessedBy, rf.AdminNote)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refundRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.RefundRequest, error) {
	q := `SELECT ` + refundColumns + ` FROM refund_requests WHERE id=$1`
	if isLocking(tx) {
		q += " FOR UPDATE"
	}
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanRefund(row)
}

func (r *refundRepo) Resolve(ctx context.Context, tx repository.Tx, id string, status model.RefundStatus, processedAt time.Time, processedBy, note string) (bool, error) {
	const q = `
UPDATE refund_requests
   SET status=$2, processed_at=$3, processed_by=$4, admin_note=NULLIF($5, '')
 WHERE id=$1 AND status='PENDING';`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), processedAt, processedBy, note)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refundRepo) ListByStatus(ctx context.Context, tx repository.Tx, status model.RefundStatus, limit int) ([]*model.RefundRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + refundColumns + ` FROM refund_requests WHERE status=$1 ORDER BY requested_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.RefundRequest
	for rows.Next() {
		rf, err := scanRefund(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rf)
	}
	return out, mapErr(rows.Err())
}

func scanRefund(row pgx.Row) (*model.RefundRequest, error) {
	var (
		rf           model.RefundRequest
		status, tier string
	)
	if err := row.Scan(&rf.ID, &rf.PaymentID, &rf.AccountID, &rf.Amount, &rf.CancelReason, &status,
		&tier, &rf.SnapshotExpiresAt, &rf.SnapshotAutoRenewal, &rf.RequestedAt,
		&rf.ProcessedAt, &rf.ProcessedBy, &rf.AdminNote); err != nil {
		return nil, scanErr(err)
	}
	rf.Status = model.RefundStatus(status)
	rf.SnapshotTier = model.Tier(tier)
	return &rf, nil
}
