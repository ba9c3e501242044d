// File: internal/usecase/confirm_uc.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/domain/ports/repository"
	"course-entitlement/internal/infra/logging"
	"course-entitlement/internal/infra/metrics"
)

// Compile-time check
var _ ConfirmUseCase = (*confirmUC)(nil)

// ConfirmRequest is a channel proof plus the purchase it claims to pay for.
type ConfirmRequest struct {
	Channel   model.Channel
	OrderID   string // card: client order id; in-app: defaults to the store transaction id
	Token     string // card payment key or store transaction id
	AccountID string // claimed; must equal the caller
	ProductID string
	Amount    int64  // client-claimed amount, 0 when not stated
	IntentID  string // RESOURCE_UNLOCK only
}

type ConfirmResult struct {
	OrderID     string
	Duplicate   bool
	Effect      model.EffectKind
	Entitlement model.Entitlement
}

type ConfirmUseCase interface {
	// Confirm verifies a client-presented proof with the processor and applies its effect once.
	Confirm(ctx context.Context, callerID string, req ConfirmRequest) (*ConfirmResult, error)
	// Settle records an already verified purchase (store webhook). Same idempotency as Confirm.
	Settle(ctx context.Context, st Settlement) (*ConfirmResult, error)
}

type confirmUC struct {
	catalog    *model.Catalog
	processors Processors
	purchases  repository.PurchaseRepository
	unlocks    repository.UnlockRepository
	settler    *settler
	timeout    time.Duration
	intentTTL  time.Duration
	log        *zerolog.Logger
	now        func() time.Time
}

func NewConfirmUseCase(
	catalog *model.Catalog,
	processors Processors,
	accounts repository.AccountRepository,
	purchases repository.PurchaseRepository,
	unlocks repository.UnlockRepository,
	tm repository.TransactionManager,
	timeout, intentTTL time.Duration,
	logger *zerolog.Logger,
) *confirmUC {
	l := logger.With().Str("component", "ConfirmUC").Logger()
	return &confirmUC{
		catalog:    catalog,
		processors: processors,
		purchases:  purchases,
		unlocks:    unlocks,
		settler:    &settler{accounts: accounts, purchases: purchases, unlocks: unlocks, tm: tm, log: &l},
		timeout:    timeout,
		intentTTL:  intentTTL,
		log:        &l,
		now:        utcNow,
	}
}

func (u *confirmUC) Confirm(ctx context.Context, callerID string, req ConfirmRequest) (res *ConfirmResult, err error) {
	defer logging.TraceDuration(u.log, "ConfirmUC.Confirm")()
	defer func() { metrics.IncConfirmation(string(req.Channel), confirmResultLabel(res, err)) }()

	// 1. identity
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	if req.AccountID == "" {
		req.AccountID = callerID
	}
	if req.AccountID != callerID {
		return nil, domain.ErrForbidden
	}
	if req.Channel == model.ChannelInApp && req.OrderID == "" {
		req.OrderID = req.Token
	}
	if req.OrderID == "" || req.Token == "" || req.ProductID == "" {
		return nil, fmt.Errorf("%w: order id, token and product id are required", domain.ErrInvalidRequest)
	}
	proc, err := u.processors.For(req.Channel)
	if err != nil {
		return nil, err
	}

	// 2. catalog
	product, err := u.catalog.Lookup(req.ProductID)
	if err != nil {
		return nil, err
	}
	if req.Amount != 0 && req.Amount != product.Price {
		return nil, domain.ErrInvalidAmount
	}

	log := logging.With(logging.WithOrderID(logging.WithAccountID(ctx, callerID), req.OrderID), u.log)

	// 3. already recorded: answer from the ledger without touching the processor
	if prior, err := u.purchases.FindByOrderID(ctx, repository.NoTX, req.OrderID); err == nil {
		if prior.AccountID != callerID {
			return nil, domain.ErrForbidden
		}
		log.Debug().Msg("order already recorded")
		return u.currentState(ctx, prior.OrderID, product.Kind, callerID)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// 4. processor
	var v adapter.Verification
	err = callProcessor(ctx, proc, "confirm", u.timeout, domain.ErrConfirmFailed, func(ctx context.Context) error {
		var cerr error
		v, cerr = proc.Confirm(ctx, adapter.PaymentProof{
			OrderID:   req.OrderID,
			Token:     req.Token,
			Amount:    product.Price,
			ProductID: product.ID,
			AccountID: callerID,
		})
		return cerr
	})
	if err != nil {
		log.Warn().Err(err).Str("processor", proc.Name()).Msg("payment confirmation failed")
		return nil, err
	}
	if v.Amount != 0 && v.Amount != product.Price {
		log.Warn().Int64("reported", v.Amount).Int64("price", product.Price).Msg("processor amount differs from catalog price")
		return nil, domain.ErrInvalidAmount
	}
	if v.AccountID != "" && v.AccountID != callerID {
		return nil, domain.ErrForbidden
	}
	if v.ProductID != "" && v.ProductID != product.ID {
		return nil, fmt.Errorf("%w: verified product %q does not match %q", domain.ErrInvalidRequest, v.ProductID, product.ID)
	}

	// 5. intent
	var intent *model.UnlockIntent
	if product.Kind == model.EffectResourceUnlock {
		intent, err = u.loadIntent(ctx, req.IntentID, callerID, product.ID)
		if err != nil {
			return nil, err
		}
	}

	// 6-7. ledger row and effect, atomically
	ref := v.TransactionID
	if ref == "" {
		ref = req.Token
	}
	return u.Settle(ctx, Settlement{
		OrderID:     req.OrderID,
		AccountID:   callerID,
		Product:     product,
		Channel:     req.Channel,
		ExternalRef: ref,
		Amount:      product.Price,
		ApprovedAt:  v.ApprovedAt,
		Intent:      intent,
	})
}

func (u *confirmUC) Settle(ctx context.Context, st Settlement) (*ConfirmResult, error) {
	if st.Product == nil {
		return nil, domain.ErrUnknownProduct
	}
	now := u.now()
	if st.ApprovedAt.IsZero() {
		st.ApprovedAt = now
	}
	acc, dup, err := u.settler.settle(ctx, st, now)
	if err != nil {
		return nil, err
	}
	log := logging.With(logging.WithOrderID(logging.WithAccountID(ctx, st.AccountID), st.OrderID), u.log)
	if dup {
		log.Info().Str("channel", string(st.Channel)).Msg("duplicate order; effect not re-applied")
	} else {
		log.Info().Str("channel", string(st.Channel)).Str("product", st.Product.ID).Str("effect", string(st.Product.Kind)).Msg("purchase applied")
	}
	return u.result(ctx, st.OrderID, st.Product.Kind, acc, dup)
}

func (u *confirmUC) loadIntent(ctx context.Context, intentID, accountID, productID string) (*model.UnlockIntent, error) {
	if intentID == "" {
		return nil, domain.ErrInvalidIntent
	}
	intent, err := u.unlocks.FindIntent(ctx, repository.NoTX, intentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrInvalidIntent
	}
	if err != nil {
		return nil, err
	}
	if !intent.Usable(accountID, productID, u.intentTTL, u.now()) {
		return nil, domain.ErrInvalidIntent
	}
	return intent, nil
}

func (u *confirmUC) currentState(ctx context.Context, orderID string, kind model.EffectKind, accountID string) (*ConfirmResult, error) {
	acc, err := loadOrNewAccount(ctx, u.settler.accounts, repository.NoTX, accountID)
	if err != nil {
		return nil, err
	}
	return u.result(ctx, orderID, kind, acc, true)
}

func (u *confirmUC) result(ctx context.Context, orderID string, kind model.EffectKind, acc *model.Account, dup bool) (*ConfirmResult, error) {
	ent := acc.Entitlement()
	grants, err := u.unlocks.ListGrants(ctx, repository.NoTX, acc.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		ent.UnlockedResources = append(ent.UnlockedResources, g.ResourceID)
	}
	return &ConfirmResult{OrderID: orderID, Duplicate: dup, Effect: kind, Entitlement: ent}, nil
}

func confirmResultLabel(res *ConfirmResult, err error) string {
	switch {
	case err == nil && res != nil && res.Duplicate:
		return "duplicate"
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrConfirmFailed):
		return "rejected"
	case errors.Is(err, domain.ErrProcessorUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, domain.ErrInvalidIntent):
		return "invalid_intent"
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrForbidden):
		return "denied"
	case errors.Is(err, domain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return "error"
	}
}
