// File: internal/usecase/account_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/domain/ports/repository"
	"course-entitlement/internal/infra/logging"
)

// Compile-time check
var _ AccountUseCase = (*accountUC)(nil)

type AccountUseCase interface {
	GetEntitlement(ctx context.Context, callerID string) (*model.Entitlement, error)
	// RegisterBillingCredential stores an encrypted billing key and enables auto-renewal.
	RegisterBillingCredential(ctx context.Context, callerID, credential string) (*model.Entitlement, error)
	CancelAutoRenewal(ctx context.Context, callerID string) (*model.Entitlement, error)
	// CreateUnlockIntent pre-authorizes buying productID to unlock resourceID.
	CreateUnlockIntent(ctx context.Context, callerID, resourceID, productID string) (*model.UnlockIntent, error)
	// ListPurchases returns the caller's ledger, newest first.
	ListPurchases(ctx context.Context, callerID string) ([]*model.PurchaseRecord, error)
}

type accountUC struct {
	catalog   *model.Catalog
	accounts  repository.AccountRepository
	purchases repository.PurchaseRepository
	unlocks   repository.UnlockRepository
	cipher    adapter.CredentialCipher
	tm        repository.TransactionManager
	devMode   bool
	log       *zerolog.Logger
	now       func() time.Time
}

func NewAccountUseCase(
	catalog *model.Catalog,
	accounts repository.AccountRepository,
	purchases repository.PurchaseRepository,
	unlocks repository.UnlockRepository,
	cipher adapter.CredentialCipher,
	tm repository.TransactionManager,
	devMode bool,
	logger *zerolog.Logger,
) *accountUC {
	l := logger.With().Str("component", "AccountUC").Logger()
	return &accountUC{
		catalog:   catalog,
		accounts:  accounts,
		purchases: purchases,
		unlocks:   unlocks,
		cipher:    cipher,
		tm:        tm,
		devMode:   devMode,
		log:       &l,
		now:       utcNow,
	}
}

func (u *accountUC) GetEntitlement(ctx context.Context, callerID string) (*model.Entitlement, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	acc, err := loadOrNewAccount(ctx, u.accounts, repository.NoTX, callerID)
	if err != nil {
		return nil, err
	}
	return u.entitlement(ctx, acc)
}

func (u *accountUC) ListPurchases(ctx context.Context, callerID string) ([]*model.PurchaseRecord, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	return u.purchases.ListByAccount(ctx, repository.NoTX, callerID)
}

func (u *accountUC) RegisterBillingCredential(ctx context.Context, callerID, credential string) (*model.Entitlement, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, fmt.Errorf("%w: billing credential is required", domain.ErrInvalidRequest)
	}
	sealed, err := u.cipher.Encrypt(credential)
	if err != nil {
		return nil, fmt.Errorf("encrypt credential: %w", err)
	}

	acc, err := u.mutate(ctx, callerID, func(acc *model.Account) error {
		if acc.Withdrawn {
			return domain.ErrAccountWithdrawn
		}
		acc.BillingCredential = &sealed
		acc.AutoRenewalEnabled = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	logging.With(logging.WithAccountID(ctx, callerID), u.log).Info().
		Str("credential", logging.Redact(credential, u.devMode)).Msg("billing credential registered")
	return u.entitlement(ctx, acc)
}

func (u *accountUC) CancelAutoRenewal(ctx context.Context, callerID string) (*model.Entitlement, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	acc, err := u.mutate(ctx, callerID, func(acc *model.Account) error {
		acc.AutoRenewalEnabled = false
		return nil
	})
	if err != nil {
		return nil, err
	}
	return u.entitlement(ctx, acc)
}

func (u *accountUC) CreateUnlockIntent(ctx context.Context, callerID, resourceID, productID string) (*model.UnlockIntent, error) {
	if callerID == "" {
		return nil, domain.ErrUnauthorized
	}
	product, err := u.catalog.Lookup(productID)
	if err != nil {
		return nil, err
	}
	if product.Kind != model.EffectResourceUnlock {
		return nil, fmt.Errorf("%w: product %q does not unlock resources", domain.ErrInvalidRequest, productID)
	}
	if product.ResourceID != "" && product.ResourceID != resourceID {
		return nil, fmt.Errorf("%w: product %q unlocks %q", domain.ErrInvalidRequest, productID, product.ResourceID)
	}
	intent, err := model.NewUnlockIntent(callerID, resourceID, productID)
	if err != nil {
		return nil, fmt.Errorf("%w: resource id is required", domain.ErrInvalidRequest)
	}
	intent.CreatedAt = u.now()
	if err := u.unlocks.SaveIntent(ctx, repository.NoTX, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

// mutate applies fn to the locked account row and saves it.
func (u *accountUC) mutate(ctx context.Context, accountID string, fn func(acc *model.Account) error) (*model.Account, error) {
	var out *model.Account
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		acc, err := loadOrNewAccount(ctx, u.accounts, tx, accountID)
		if err != nil {
			return err
		}
		if err := fn(acc); err != nil {
			return err
		}
		acc.UpdatedAt = u.now()
		out = acc
		return u.accounts.Save(ctx, tx, acc)
	})
	return out, err
}

func (u *accountUC) entitlement(ctx context.Context, acc *model.Account) (*model.Entitlement, error) {
	ent := acc.Entitlement()
	grants, err := u.unlocks.ListGrants(ctx, repository.NoTX, acc.ID)
	if err != nil {
		return nil, err
	}
	for _, g := range grants {
		ent.UnlockedResources = append(ent.UnlockedResources, g.ResourceID)
	}
	return &ent, nil
}
