// File: internal/usecase/retention_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/domain/ports/repository"
	"course-entitlement/internal/infra/metrics"
)

// Compile-time check
var _ RetentionUseCase = (*retentionUC)(nil)

type RetentionReport struct {
	PurchasesDeleted int64
	IntentsDeleted   int64
}

type RetentionUseCase interface {
	Sweep(ctx context.Context, now time.Time) (*RetentionReport, error)
}

type retentionUC struct {
	purchases         repository.PurchaseRepository
	unlocks           repository.UnlockRepository
	purchaseRetention time.Duration
	intentTTL         time.Duration
	completedKeep     time.Duration
	log               *zerolog.Logger
}

func NewRetentionUseCase(
	purchases repository.PurchaseRepository,
	unlocks repository.UnlockRepository,
	purchaseRetention, intentTTL, completedKeep time.Duration,
	logger *zerolog.Logger,
) *retentionUC {
	l := logger.With().Str("component", "RetentionUC").Logger()
	return &retentionUC{
		purchases:         purchases,
		unlocks:           unlocks,
		purchaseRetention: purchaseRetention,
		intentTTL:         intentTTL,
		completedKeep:     completedKeep,
		log:               &l,
	}
}

// Sweep deletes ledger rows past legal retention and unlock intents that can
// no longer be consumed. Both steps always run; their errors are joined.
func (u *retentionUC) Sweep(ctx context.Context, now time.Time) (*RetentionReport, error) {
	report := &RetentionReport{}

	n, perr := u.purchases.DeleteApprovedBefore(ctx, repository.NoTX, now.Add(-u.purchaseRetention))
	if perr != nil {
		perr = fmt.Errorf("delete purchases: %w", perr)
		u.log.Error().Err(perr).Msg("retention sweep step failed")
	} else {
		report.PurchasesDeleted = n
		metrics.AddRetentionDeleted("purchase", n)
	}

	n, ierr := u.unlocks.DeleteStaleIntents(ctx, repository.NoTX, now.Add(-u.intentTTL), now.Add(-u.completedKeep))
	if ierr != nil {
		ierr = fmt.Errorf("delete intents: %w", ierr)
		u.log.Error().Err(ierr).Msg("retention sweep step failed")
	} else {
		report.IntentsDeleted = n
		metrics.AddRetentionDeleted("intent", n)
	}

	u.log.Info().
		Int64("purchases_deleted", report.PurchasesDeleted).
		Int64("intents_deleted", report.IntentsDeleted).
		Msg("retention sweep finished")
	return report, errors.Join(perr, ierr)
}
