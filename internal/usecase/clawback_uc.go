// File: internal/usecase/clawback_uc.go
package usecase

import (
	"context"
	"errors"
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
var _ ClawbackUseCase = (*clawbackUC)(nil)

type ClawbackResult string

const (
	ClawbackUnknown        ClawbackResult = "unknown"
	ClawbackAlreadyHandled ClawbackResult = "already_handled"
	ClawbackApplied        ClawbackResult = "applied"
)

// ClawbackOutcome describes what a platform refund took back.
type ClawbackOutcome struct {
	Result           ClawbackResult
	OrderID          string
	AccountID        string
	CreditsReclaimed int64
	CreditShortfall  int64
	Downgraded       bool
}

type ClawbackUseCase interface {
	// Clawback revokes the benefit of a purchase the platform refunded on its own.
	// It is idempotent: repeated deliveries of the same refund change nothing.
	Clawback(ctx context.Context, channel model.Channel, externalRef string) (*ClawbackOutcome, error)
}

type clawbackUC struct {
	catalog   *model.Catalog
	accounts  repository.AccountRepository
	purchases repository.PurchaseRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
	now       func() time.Time
}

func NewClawbackUseCase(
	catalog *model.Catalog,
	accounts repository.AccountRepository,
	purchases repository.PurchaseRepository,
	tm repository.TransactionManager,
	logger *zerolog.Logger,
) *clawbackUC {
	l := logger.With().Str("component", "ClawbackUC").Logger()
	return &clawbackUC{catalog: catalog, accounts: accounts, purchases: purchases, tm: tm, log: &l, now: utcNow}
}

func (u *clawbackUC) Clawback(ctx context.Context, channel model.Channel, externalRef string) (out *ClawbackOutcome, err error) {
	defer logging.TraceDuration(u.log, "ClawbackUC.Clawback")()
	defer func() {
		if err == nil {
			metrics.IncClawback(string(out.Result))
		}
	}()

	purchase, err := u.purchases.FindByExternalReference(ctx, repository.NoTX, channel, externalRef)
	if errors.Is(err, domain.ErrNotFound) {
		u.log.Info().Str("channel", string(channel)).Str("external_ref", externalRef).Msg("refund for unknown transaction; ignored")
		return &ClawbackOutcome{Result: ClawbackUnknown}, nil
	}
	if err != nil {
		return nil, err
	}
	out = &ClawbackOutcome{Result: ClawbackAlreadyHandled, OrderID: purchase.OrderID, AccountID: purchase.AccountID}
	if !purchase.IsPaid() {
		return out, nil
	}

	log := logging.With(logging.WithOrderID(logging.WithAccountID(ctx, purchase.AccountID), purchase.OrderID), u.log)
	product, lookupErr := u.catalog.Lookup(purchase.ProductID)

	now := u.now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		ok, err := u.purchases.MarkCancelled(ctx, tx, purchase.OrderID)
		if err != nil {
			return err
		}
		if !ok {
			return nil // a concurrent delivery won
		}
		out.Result = ClawbackApplied
		if lookupErr != nil {
			log.Warn().Str("product", purchase.ProductID).Msg("cancelled purchase of a product no longer in the catalog; entitlement untouched")
			return nil
		}

		acc, err := u.accounts.FindByID(ctx, tx, purchase.AccountID)
		if err != nil {
			return err
		}
		switch product.Kind {
		case model.EffectCredit:
			out.CreditsReclaimed = acc.ReclaimCredits(product.Credits)
			out.CreditShortfall = product.Credits - out.CreditsReclaimed
		case model.EffectSubscription:
			acc.Downgrade()
			out.Downgraded = true
		case model.EffectResourceUnlock:
			log.Warn().Msg("platform refunded a resource unlock; grants are permanent and stay in place")
			return nil
		}
		acc.UpdatedAt = now
		return u.accounts.Save(ctx, tx, acc)
	})
	if err != nil {
		return nil, err
	}

	if out.CreditShortfall > 0 {
		metrics.AddCreditShortfall(out.CreditShortfall)
		log.Warn().
			Int64("owed", product.Credits).
			Int64("reclaimed", out.CreditsReclaimed).
			Int64("shortfall", out.CreditShortfall).
			Msg("credits already spent; partial reclaim")
	}
	if out.Result == ClawbackApplied {
		log.Info().Bool("downgraded", out.Downgraded).Int64("credits_reclaimed", out.CreditsReclaimed).Msg("platform refund applied")
	}
	return out, nil
}
