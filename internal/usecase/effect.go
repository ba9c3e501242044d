// File: internal/usecase/effect.go
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
)

// Settlement is a verified purchase ready to be recorded: every channel
// (card confirm, in-app confirm, store webhook, renewal charge) reduces to one.
type Settlement struct {
	OrderID     string
	AccountID   string
	Product     *model.Product
	Channel     model.Channel
	ExternalRef string
	Amount      int64
	ApprovedAt  time.Time
	Intent      *model.UnlockIntent // RESOURCE_UNLOCK only
}

// settler writes the ledger row and the entitlement effect in one transaction.
type settler struct {
	accounts  repository.AccountRepository
	purchases repository.PurchaseRepository
	unlocks   repository.UnlockRepository
	tm        repository.TransactionManager
	log       *zerolog.Logger
}

// settle returns the account after the effect and whether the order had
// already been recorded. A lost insert race is a duplicate, never an error.
func (s *settler) settle(ctx context.Context, st Settlement, now time.Time) (*model.Account, bool, error) {
	eff, err := st.Product.EffectFor(st.Intent)
	if err != nil {
		return nil, false, err
	}
	rec, err := model.NewPurchaseRecord(st.OrderID, st.AccountID, st.Product, st.Channel, st.ExternalRef, st.Amount, st.ApprovedAt)
	if err != nil {
		return nil, false, err
	}

	var (
		acc       *model.Account
		duplicate bool
	)
	err = s.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		inserted, err := s.purchases.Insert(ctx, tx, rec)
		if err != nil {
			return err
		}
		if !inserted {
			duplicate = true
			acc, err = loadOrNewAccount(ctx, s.accounts, tx, st.AccountID)
			return err
		}
		acc, err = loadOrNewAccount(ctx, s.accounts, tx, st.AccountID)
		if err != nil {
			return err
		}
		if err := s.applyEffect(ctx, tx, acc, eff, now); err != nil {
			return err
		}
		acc.UpdatedAt = now
		return s.accounts.Save(ctx, tx, acc)
	})
	if err != nil {
		return nil, false, err
	}
	return acc, duplicate, nil
}

// applyEffect mutates a locked account (and, for unlocks, the grant and intent
// tables) inside the caller's transaction.
func (s *settler) applyEffect(ctx context.Context, tx repository.Tx, acc *model.Account, eff model.EntitlementEffect, now time.Time) error {
	switch e := eff.(type) {
	case model.CreditEffect:
		acc.AddCredits(e.Credits)
	case model.SubscriptionExtendEffect:
		acc.ExtendSubscription(e.Tier, e.Period, now)
	case model.ResourceUnlockEffect:
		g := &model.UnlockGrant{AccountID: acc.ID, ResourceID: e.ResourceID, GrantedAt: now}
		if err := s.unlocks.Grant(ctx, tx, g); err != nil {
			return err
		}
		ok, err := s.unlocks.CompleteIntent(ctx, tx, e.IntentID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInvalidIntent
		}
	default:
		return fmt.Errorf("%w: unsupported effect %T", domain.ErrInvalidArgument, eff)
	}
	return nil
}

// loadOrNewAccount locks the account row when tx is a transaction. Accounts
// are provisioned on first purchase; the insert is conflict-free so that two
// first purchases racing for one account both end up locking the same row.
func loadOrNewAccount(ctx context.Context, accounts repository.AccountRepository, tx repository.Tx, id string) (*model.Account, error) {
	acc, err := accounts.FindByID(ctx, tx, id)
	if err == nil {
		return acc, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	fresh, err := model.NewAccount(id)
	if err != nil {
		return nil, err
	}
	if err := accounts.Create(ctx, tx, fresh); err != nil {
		return nil, err
	}
	return accounts.FindByID(ctx, tx, id)
}

func utcNow() time.Time { return time.Now().UTC() }
