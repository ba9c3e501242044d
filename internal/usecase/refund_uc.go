// File: internal/usecase/refund_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
	"course-entitlement/internal/infra/logging"
	"course-entitlement/internal/infra/metrics"
)

// Compile-time check
var _ RefundUseCase = (*refundUC)(nil)

type RefundUseCase interface {
	// Submit files a refund for a subscription purchase and downgrades the account while it is reviewed.
	Submit(ctx context.Context, callerID, paymentID, reason string) (*model.RefundRequest, error)
	// Approve cancels the payment at the processor, then finalizes the request.
	Approve(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error)
	// Reject restores the entitlement captured at submission.
	Reject(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error)
	ListPending(ctx context.Context, limit int) ([]*model.RefundRequest, error)
}

type refundUC struct {
	catalog    *model.Catalog
	processors Processors
	accounts   repository.AccountRepository
	purchases  repository.PurchaseRepository
	refunds    repository.RefundRepository
	usage      repository.UsageRepository
	tm         repository.TransactionManager
	timeout    time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

func NewRefundUseCase(
	catalog *model.Catalog,
	processors Processors,
	accounts repository.AccountRepository,
	purchases repository.PurchaseRepository,
	refunds repository.RefundRepository,
	usage repository.UsageRepository,
	tm repository.TransactionManager,
	timeout time.Duration,
	logger *zerolog.Logger,
) *refundUC {
	l := logger.With().Str("component", "RefundUC").Logger()
	return &refundUC{
		catalog:    catalog,
		processors: processors,
		accounts:   accounts,
		purchases:  purchases,
		refunds:    refunds,
		usage:      usage,
		tm:         tm,
		timeout:    timeout,
		log:        &l,
		now:        utcNow,
	}
}

func (u *refundUC) Submit(ctx context.Context, callerID, paymentID, reason string) (*model.RefundRequest, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Submit")()
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if paymentID == "" {
		return nil, fmt.Errorf("%w: payment id is required", domain.ErrInvalidRequest)
	}

	purchase, err := u.purchases.FindByOrderID(ctx, repository.NoTX, paymentID)
	if err != nil {
		return nil, err
	}
	if purchase.AccountID != callerID {
		return nil, domain.ErrForbidden
	}
	if err := u.checkEligibility(ctx, purchase); err != nil {
		return nil, err
	}

	now := u.now()
	var req *model.RefundRequest
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		acc, err := u.accounts.FindByID(ctx, tx, callerID)
		if err != nil {
			return err
		}
		req, err = model.NewRefundRequest(purchase, acc, reason, now)
		if err != nil {
			return err
		}
		inserted, err := u.refunds.Insert(ctx, tx, req)
		if err != nil {
			return err
		}
		if !inserted {
			return fmt.Errorf("%w: refund already requested for %s", domain.ErrAlreadyExists, paymentID)
		}
		acc.Downgrade()
		acc.UpdatedAt = now
		return u.accounts.Save(ctx, tx, acc)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncRefund("submitted")
	logging.With(logging.WithAccountID(ctx, callerID), u.log).Info().
		Str("refund_id", req.ID).Str("payment_id", paymentID).
		Str("snapshot_tier", string(req.SnapshotTier)).Msg("refund requested; account downgraded pending review")
	return req, nil
}

// checkEligibility enforces the refund preconditions outside any transaction;
// they depend only on the immutable purchase and on usage history.
func (u *refundUC) checkEligibility(ctx context.Context, p *model.PurchaseRecord) error {
	if !p.IsPaid() {
		return &domain.IneligibleForRefundError{Reason: domain.RefundReasonNotPaid}
	}
	product, err := u.catalog.Lookup(p.ProductID)
	if err != nil || !product.IsSubscription() {
		return &domain.IneligibleForRefundError{Reason: domain.RefundReasonNotSubs}
	}
	if p.Channel != model.ChannelCard {
		return &domain.IneligibleForRefundError{Reason: domain.RefundReasonStore}
	}

	now := u.now()
	days := int(model.RemainingDays(now, p.ApprovedAt))
	if !model.WithinRefundWindow(p.ApprovedAt, now) {
		return &domain.IneligibleForRefundError{Reason: domain.RefundReasonWindow, DaysElapsed: days}
	}
	counts, err := u.usage.CountSince(ctx, repository.NoTX, p.AccountID, p.ApprovedAt)
	if err != nil {
		return err
	}
	if counts.Any() {
		return &domain.IneligibleForRefundError{
			Reason:         domain.RefundReasonUsage,
			DaysElapsed:    days,
			CompletedCount: counts.Completed,
			UnlockedCount:  counts.Unlocked,
			ViewedCount:    counts.Viewed,
		}
	}
	return nil
}

func (u *refundUC) Approve(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Approve")()
	if adminID == "" {
		return nil, domain.ErrUnauthorized
	}
	req, err := u.refunds.FindByID(ctx, repository.NoTX, refundID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, domain.ErrRefundNotPending
	}
	purchase, err := u.purchases.FindByOrderID(ctx, repository.NoTX, req.PaymentID)
	if err != nil {
		return nil, err
	}

	log := logging.With(logging.WithOrderID(logging.WithAccountID(ctx, req.AccountID), purchase.OrderID), u.log)

	// A purchase the platform already clawed back has nothing left to cancel.
	if purchase.IsPaid() {
		proc, err := u.processors.For(purchase.Channel)
		if err != nil {
			return nil, err
		}
		err = callProcessor(ctx, proc, "cancel", u.timeout, domain.ErrCancelFailed, func(ctx context.Context) error {
			return proc.Cancel(ctx, purchase.ExternalReference, req.Amount, req.CancelReason, "refund-"+purchase.OrderID)
		})
		if errors.Is(err, domain.ErrUnsupportedOperation) {
			err = fmt.Errorf("%w: %v", domain.ErrCancelFailed, err)
		}
		if err != nil {
			metrics.IncRefund("cancel_failed")
			log.Warn().Err(err).Str("refund_id", req.ID).Msg("processor cancel failed; refund left pending")
			return nil, err
		}
	}

	now := u.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.refunds.Resolve(ctx, tx, req.ID, model.RefundStatusApproved, now, adminID, note)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrRefundNotPending
		}
		_, err = u.purchases.MarkCancelled(ctx, tx, purchase.OrderID)
		return err
	})
	if err != nil {
		return nil, err
	}

	resolve(req, model.RefundStatusApproved, now, adminID, note)
	metrics.IncRefund("approved")
	log.Info().Str("refund_id", req.ID).Str("admin_id", adminID).Int64("amount", req.Amount).Msg("refund approved")
	return req, nil
}

func (u *refundUC) Reject(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error) {
	defer logging.TraceDuration(u.log, "RefundUC.Reject")()
	if adminID == "" {
		return nil, domain.ErrUnauthorized
	}
	req, err := u.refunds.FindByID(ctx, repository.NoTX, refundID)
	if err != nil {
		return nil, err
	}
	if !req.IsPending() {
		return nil, domain.ErrRefundNotPending
	}

	now := u.now()
	var restored bool
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.refunds.Resolve(ctx, tx, req.ID, model.RefundStatusRejected, now, adminID, note)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrRefundNotPending
		}
		purchase, err := u.purchases.FindByOrderID(ctx, tx, req.PaymentID)
		if err != nil {
			return err
		}
		acc, err := u.accounts.FindByID(ctx, tx, req.AccountID)
		if err != nil {
			return err
		}
		// The platform refunded the payment while it was under review.
		if !purchase.IsPaid() {
			return nil
		}
		restored = restoreSnapshot(acc, req, now)
		if !restored {
			return nil
		}
		acc.UpdatedAt = now
		return u.accounts.Save(ctx, tx, acc)
	})
	if err != nil {
		return nil, err
	}

	resolve(req, model.RefundStatusRejected, now, adminID, note)
	metrics.IncRefund("rejected")
	logging.With(logging.WithAccountID(ctx, req.AccountID), u.log).Info().
		Str("refund_id", req.ID).Str("admin_id", adminID).Bool("restored", restored).Msg("refund rejected")
	return req, nil
}

func (u *refundUC) ListPending(ctx context.Context, limit int) ([]*model.RefundRequest, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.refunds.ListByStatus(ctx, repository.NoTX, model.RefundStatusPending, limit)
}

// restoreSnapshot gives back what the request captured. It never shortens a
// paid entitlement the account bought while the request was pending.
func restoreSnapshot(acc *model.Account, req *model.RefundRequest, now time.Time) bool {
	tier, exp, ok := req.Restoration(now)
	if !ok {
		return false
	}
	if acc.ActiveTier(now) != model.TierFree {
		if acc.ExpiresAt == nil || (exp != nil && !exp.After(*acc.ExpiresAt)) {
			return false
		}
	}
	acc.Tier = tier
	acc.ExpiresAt = exp
	acc.AutoRenewalEnabled = req.SnapshotAutoRenewal
	return true
}

func resolve(r *model.RefundRequest, status model.RefundStatus, at time.Time, by, note string) {
	r.Status = status
	r.ProcessedAt = &at
	r.ProcessedBy = &by
	if note != "" {
		r.AdminNote = &note
	}
}
