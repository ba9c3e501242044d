// File: internal/usecase/webhook_uc.go
package usecase

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/infra/metrics"
)

// Compile-time check
var _ WebhookUseCase = (*webhookUC)(nil)

// WebhookOutcome is what happened to one delivery. Every outcome is acknowledged;
// only a returned error asks the platform to redeliver.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

type WebhookUseCase interface {
	HandlePlatformEvent(ctx context.Context, ev *model.PlatformEvent) (WebhookOutcome, error)
}

type webhookUC struct {
	catalog  *model.Catalog
	confirm  ConfirmUseCase
	clawback ClawbackUseCase
	log      *zerolog.Logger
}

func NewWebhookUseCase(catalog *model.Catalog, confirm ConfirmUseCase, clawback ClawbackUseCase, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUC").Logger()
	return &webhookUC{catalog: catalog, confirm: confirm, clawback: clawback, log: &l}
}

func (u *webhookUC) HandlePlatformEvent(ctx context.Context, ev *model.PlatformEvent) (WebhookOutcome, error) {
	log := u.log.With().Str("event_id", ev.ID).Str("type", string(ev.Type)).Str("transaction_id", ev.TransactionID).Logger()

	if ev.Type == model.EventRefund {
		out, err := u.clawback.Clawback(ctx, model.ChannelInApp, ev.TransactionID)
		if err != nil {
			return "", err
		}
		if out.Result == ClawbackApplied {
			return WebhookApplied, nil
		}
		return WebhookIgnored, nil
	}
	if !ev.Type.IsPurchase() {
		return WebhookIgnored, nil
	}

	product, err := u.catalog.Lookup(ev.ProductID)
	if err != nil {
		log.Info().Str("product", ev.ProductID).Msg("unknown product; acknowledged and ignored")
		return u.ignored(), nil
	}
	if product.Kind == model.EffectResourceUnlock {
		// Unlocks need an intent, which only the client confirm path carries.
		log.Info().Str("product", ev.ProductID).Msg("resource unlock via webhook; left to client confirmation")
		return u.ignored(), nil
	}
	if ev.Price != 0 && ev.Price != product.Price {
		log.Warn().Int64("price", ev.Price).Int64("catalog_price", product.Price).Msg("event price differs from catalog; dropped")
		metrics.IncConfirmation(string(model.ChannelInApp), "invalid_amount")
		return WebhookIgnored, nil
	}

	res, err := u.confirm.Settle(ctx, Settlement{
		OrderID:     ev.TransactionID,
		AccountID:   ev.AccountID,
		Product:     product,
		Channel:     model.ChannelInApp,
		ExternalRef: ev.TransactionID,
		Amount:      product.Price,
		ApprovedAt:  ev.PurchasedAt,
	})
	if errors.Is(err, domain.ErrInvalidArgument) {
		log.Warn().Err(err).Msg("event rejected by ledger validation; dropped")
		return u.ignored(), nil
	}
	if err != nil {
		metrics.IncConfirmation(string(model.ChannelInApp), "error")
		return "", err
	}
	if res.Duplicate {
		metrics.IncConfirmation(string(model.ChannelInApp), "duplicate")
		return WebhookDuplicate, nil
	}
	metrics.IncConfirmation(string(model.ChannelInApp), "applied")
	return WebhookApplied, nil
}

func (u *webhookUC) ignored() WebhookOutcome {
	metrics.IncConfirmation(string(model.ChannelInApp), "ignored")
	return WebhookIgnored
}
