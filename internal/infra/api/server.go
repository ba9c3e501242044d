package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"course-entitlement/internal/usecase"
)

type Options struct {
	WebhookSecret    string
	ConfirmRateLimit int // per account per minute; 0 disables
	RequestTimeout   time.Duration
	Dev              bool
}

// Server exposes the entitlement use cases over HTTP.
type Server struct {
	confirm  usecase.ConfirmUseCase
	account  usecase.AccountUseCase
	refund   usecase.RefundUseCase
	webhook  usecase.WebhookUseCase
	identity IdentityResolver
	limiter  RateLimiter
	opts     Options
	log      *zerolog.Logger
}

func NewServer(
	confirm usecase.ConfirmUseCase,
	account usecase.AccountUseCase,
	refund usecase.RefundUseCase,
	webhook usecase.WebhookUseCase,
	identity IdentityResolver,
	limiter RateLimiter,
	opts Options,
	logger *zerolog.Logger,
) *Server {
	l := logger.With().Str("component", "HTTPServer").Logger()
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	return &Server{
		confirm:  confirm,
		account:  account,
		refund:   refund,
		webhook:  webhook,
		identity: identity,
		limiter:  limiter,
		opts:     opts,
		log:      &l,
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, TraceID(), RequestLog(s.log), Recover(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/webhooks/in-app", s.handlePlatformWebhook)

	r.Route("/v1", func(r chi.Router) {
		r.Use(Authenticate(s.identity, s.log))

		r.Group(func(r chi.Router) {
			r.Use(RateLimit(s.limiter, "confirm", s.opts.ConfirmRateLimit, time.Minute, s.log))
			r.Post("/payments/card/confirm", s.handleConfirmCard)
			r.Post("/payments/in-app/confirm", s.handleConfirmInApp)
		})

		r.Get("/entitlement", s.handleGetEntitlement)
		r.Get("/purchases", s.handleListPurchases)
		r.Put("/billing/credential", s.handleRegisterCredential)
		r.Delete("/billing/auto-renewal", s.handleCancelAutoRenewal)
		r.Post("/unlock-intents", s.handleCreateUnlockIntent)
		r.Post("/refunds", s.handleSubmitRefund)

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(s.log))
			r.Get("/refunds", s.handleListPendingRefunds)
			r.Post("/refunds/{refundID}/approve", s.handleApproveRefund)
			r.Post("/refunds/{refundID}/reject", s.handleRejectRefund)
		})
	})
	return r
}
