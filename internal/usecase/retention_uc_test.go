//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/repository"
)

// brokenPurchases fails the ledger delete and delegates everything else.
type brokenPurchases struct {
	*memPurchases
	err error
}

func (b brokenPurchases) DeleteApprovedBefore(context.Context, repository.Tx, time.Time) (int64, error) {
	return 0, b.err
}

func TestRetentionUseCase_Sweep(t *testing.T) {
	ctx := context.Background()
	year := 365 * day

	t.Run("should delete expired ledger rows and stale intents only", func(t *testing.T) {
		// --- Arrange ---
		env := newTestEnv()
		sweeper := NewRetentionUseCase(env.purchases, env.unlocks, 5*year, 24*time.Hour, 30*day, newTestLogger())
		now := t0

		seedSubscription(t, env, "acc-1", "ancient", "basic_30", now.Add(-6*year), now)
		seedSubscription(t, env, "acc-2", "ancient-disputed", "basic_30", now.Add(-6*year), now)
		seedSubscription(t, env, "acc-3", "recent", "basic_30", now.Add(-year), now)
		env.store.refunds["r-1"] = model.RefundRequest{ID: "r-1", PaymentID: "ancient-disputed", Status: model.RefundStatusPending}

		stalePending := &model.UnlockIntent{ID: "i-1", Status: model.IntentStatusPending, CreatedAt: now.Add(-25 * time.Hour)}
		freshPending := &model.UnlockIntent{ID: "i-2", Status: model.IntentStatusPending, CreatedAt: now.Add(-time.Hour)}
		oldCompleted := &model.UnlockIntent{ID: "i-3", Status: model.IntentStatusCompleted, CreatedAt: now.Add(-31 * day)}
		newCompleted := &model.UnlockIntent{ID: "i-4", Status: model.IntentStatusCompleted, CreatedAt: now.Add(-2 * day)}
		for _, i := range []*model.UnlockIntent{stalePending, freshPending, oldCompleted, newCompleted} {
			env.store.putIntent(i)
		}

		// --- Act ---
		report, err := sweeper.Sweep(ctx, now)

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if report.PurchasesDeleted != 1 || report.IntentsDeleted != 2 {
			t.Errorf("unexpected report: %+v", report)
		}
		if _, ok := env.store.purchase("ancient"); ok {
			t.Error("expected the 6 year old purchase to be deleted")
		}
		for _, id := range []string{"ancient-disputed", "recent"} {
			if _, ok := env.store.purchase(id); !ok {
				t.Errorf("expected %s to be kept", id)
			}
		}
		for _, id := range []string{"i-2", "i-4"} {
			if _, ok := env.store.intent(id); !ok {
				t.Errorf("expected intent %s to be kept", id)
			}
		}
	})

	t.Run("should still sweep intents when the ledger delete fails", func(t *testing.T) {
		// --- Arrange ---
		env := newTestEnv()
		purchases := brokenPurchases{memPurchases: env.purchases, err: domain.ErrOperationFailed}
		sweeper := NewRetentionUseCase(purchases, env.unlocks, 5*year, 24*time.Hour, 30*day, newTestLogger())
		env.store.putIntent(&model.UnlockIntent{ID: "i-1", Status: model.IntentStatusPending, CreatedAt: t0.Add(-25 * time.Hour)})

		// --- Act ---
		report, err := sweeper.Sweep(ctx, t0)

		// --- Assert ---
		if !errors.Is(err, domain.ErrOperationFailed) {
			t.Fatalf("expected the ledger failure to be reported, got %v", err)
		}
		if report.IntentsDeleted != 1 || report.PurchasesDeleted != 0 {
			t.Errorf("unexpected report: %+v", report)
		}
		if _, ok := env.store.intent("i-1"); ok {
			t.Error("expected the stale intent to be deleted")
		}
	})
}
