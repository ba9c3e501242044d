// File: internal/usecase/renewal_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/domain/ports/repository"
	"course-entitlement/internal/infra/metrics"
	"course-entitlement/internal/infra/worker"
)

// Compile-time check
var _ RenewalUseCase = (*renewalUC)(nil)

// settleTimeout bounds the writes that follow a charge, which run detached
// from the run context.
const settleTimeout = 30 * time.Second

// RenewalError is one account's failure within a run.
type RenewalError struct {
	AccountID string
	Err       error
}

func (e RenewalError) Error() string { return e.AccountID + ": " + e.Err.Error() }

type RenewalReport struct {
	Selected   int
	Renewed    int
	Downgraded int
	Errors     []RenewalError
}

type RenewalUseCase interface {
	// RunOnce charges every account due before now+window. Per-account failures
	// are collected in the report; the returned error is only for the selection itself.
	RunOnce(ctx context.Context, now time.Time) (*RenewalReport, error)
}

type renewalUC struct {
	catalog  *model.Catalog
	card     adapter.PaymentProcessor
	cipher   adapter.CredentialCipher
	accounts repository.AccountRepository
	tm       repository.TransactionManager
	settler  *settler
	window   time.Duration
	workers  int
	batch    int
	timeout  time.Duration
	log      *zerolog.Logger
}

func NewRenewalUseCase(
	catalog *model.Catalog,
	card adapter.PaymentProcessor,
	cipher adapter.CredentialCipher,
	accounts repository.AccountRepository,
	purchases repository.PurchaseRepository,
	unlocks repository.UnlockRepository,
	tm repository.TransactionManager,
	window time.Duration,
	workers, batch int,
	timeout time.Duration,
	logger *zerolog.Logger,
) *renewalUC {
	l := logger.With().Str("component", "RenewalUC").Logger()
	if workers <= 0 {
		workers = 4
	}
	if batch <= 0 {
		batch = 500
	}
	return &renewalUC{
		catalog:  catalog,
		card:     card,
		cipher:   cipher,
		accounts: accounts,
		tm:       tm,
		settler:  &settler{accounts: accounts, purchases: purchases, unlocks: unlocks, tm: tm, log: &l},
		window:   window,
		workers:  workers,
		batch:    batch,
		timeout:  timeout,
		log:      &l,
	}
}

func (u *renewalUC) RunOnce(ctx context.Context, now time.Time) (*RenewalReport, error) {
	due, err := u.accounts.ListRenewalDue(ctx, repository.NoTX, now.Add(u.window), u.batch)
	if err != nil {
		return nil, fmt.Errorf("select renewal candidates: %w", err)
	}
	report := &RenewalReport{Selected: len(due)}
	if len(due) == 0 {
		return report, nil
	}
	log := u.log.With().Str("run_id", ulid.Make().String()).Logger()

	var mu sync.Mutex
	settled := make(map[string]bool, len(due))
	fail := func(accountID string, err error) {
		report.Errors = append(report.Errors, RenewalError{AccountID: accountID, Err: err})
		settled[accountID] = true
	}

	pool := worker.NewPool(u.workers, &log)
	pool.Start(ctx)
	for _, acc := range due {
		acc := acc
		task := func(ctx context.Context) error {
			renewed, downgraded, err := u.renew(ctx, acc, now)
			mu.Lock()
			defer mu.Unlock()
			settled[acc.ID] = true
			switch {
			case renewed:
				report.Renewed++
				metrics.IncRenewal("renewed")
			case downgraded:
				report.Downgraded++
				metrics.IncRenewal("downgraded")
			}
			if err != nil {
				report.Errors = append(report.Errors, RenewalError{AccountID: acc.ID, Err: err})
				if !downgraded {
					metrics.IncRenewal("error")
				}
			}
			return err
		}
		if err := pool.Submit(ctx, task); err != nil {
			mu.Lock()
			fail(acc.ID, err)
			mu.Unlock()
		}
	}
	pool.Stop()

	// Tasks still queued when ctx ended never ran; they are retried next cycle.
	mu.Lock()
	for _, acc := range due {
		if settled[acc.ID] {
			continue
		}
		err := ctx.Err()
		if err == nil {
			err = worker.ErrPoolStopped
		}
		fail(acc.ID, fmt.Errorf("renewal not attempted: %w", err))
		metrics.IncRenewal("error")
	}
	mu.Unlock()

	log.Info().
		Int("selected", report.Selected).
		Int("renewed", report.Renewed).
		Int("downgraded", report.Downgraded).
		Int("errors", len(report.Errors)).
		Msg("renewal run finished")
	return report, nil
}

// renewalOrderID names the renewal of one billing period. A retried cycle
// reuses it, so the processor and the ledger both see the same order.
func renewalOrderID(acc *model.Account) string {
	return fmt.Sprintf("renew-%s-%d", acc.ID, acc.ExpiresAt.Unix())
}

// renew handles one account. A charge that fails (rejected or unreachable)
// downgrades the account and is reported alongside downgraded=true. A charge
// cut short by the end of the run is reported without a downgrade.
func (u *renewalUC) renew(ctx context.Context, acc *model.Account, now time.Time) (renewed, downgraded bool, err error) {
	log := u.log.With().Str("account_id", acc.ID).Logger()
	if err := ctx.Err(); err != nil {
		return false, false, fmt.Errorf("renewal not attempted: %w", err)
	}
	if !acc.HasBillingCredential() {
		return false, false, domain.ErrNoBillingCredential
	}
	if acc.ExpiresAt == nil {
		return false, false, fmt.Errorf("%w: no expiry to renew", domain.ErrInvalidRequest)
	}
	credential, err := u.cipher.Decrypt(*acc.BillingCredential)
	if err != nil {
		log.Error().Err(err).Msg("cannot decrypt billing credential")
		return false, false, fmt.Errorf("decrypt credential: %w", err)
	}
	product, err := u.catalog.RenewalProduct(acc.Tier)
	if err != nil {
		log.Error().Str("tier", string(acc.Tier)).Msg("no renewal product for tier")
		return false, false, err
	}

	orderID := renewalOrderID(acc)
	var charge adapter.ChargeResult
	err = callProcessor(ctx, u.card, "charge", u.timeout, domain.ErrChargeFailed, func(ctx context.Context) error {
		var cerr error
		charge, cerr = u.card.Charge(ctx, credential, product.Price, orderID, product.Name)
		return cerr
	})
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			log.Warn().Err(err).Str("order_id", orderID).Msg("renewal charge interrupted; retrying next cycle")
			return false, false, errors.Join(err, cerr)
		}
		log.Warn().Err(err).Str("order_id", orderID).Msg("renewal charge failed; downgrading")
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
		defer cancel()
		if derr := u.downgrade(wctx, acc.ID, now); derr != nil {
			return false, false, errors.Join(err, derr)
		}
		return false, true, err
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()
	_, _, err = u.settler.settle(wctx, Settlement{
		OrderID:     orderID,
		AccountID:   acc.ID,
		Product:     product,
		Channel:     model.ChannelCard,
		ExternalRef: charge.TransactionID,
		Amount:      product.Price,
		ApprovedAt:  charge.ApprovedAt,
	}, now)
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID).Str("transaction_id", charge.TransactionID).Msg("charged but failed to record renewal")
		return false, false, err
	}
	log.Info().Str("order_id", orderID).Str("product", product.ID).Msg("subscription renewed")
	return true, false, nil
}

// downgrade re-checks the account under lock so that an entitlement extended
// by another channel since selection is left alone.
func (u *renewalUC) downgrade(ctx context.Context, accountID string, now time.Time) error {
	return u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		acc, err := u.accounts.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acc.ExpiresAt != nil && acc.ExpiresAt.After(now.Add(u.window)) {
			return nil
		}
		acc.Downgrade()
		acc.UpdatedAt = now
		return u.accounts.Save(ctx, tx, acc)
	})
}
