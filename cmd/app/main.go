package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"course-entitlement/internal/config"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/infra/api"
	pg "course-entitlement/internal/infra/db/postgres"
	"course-entitlement/internal/infra/logging"
	"course-entitlement/internal/infra/metrics"
	"course-entitlement/internal/infra/payment"
	red "course-entitlement/internal/infra/redis"
	"course-entitlement/internal/infra/sched"
	"course-entitlement/internal/infra/security"
	"course-entitlement/internal/usecase"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (noop-friendly defaults, unredacted logs)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("service stopped")
	}
}

func run(cfg *config.Config, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(version, commit)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("developer mode enabled")
	}

	catalog, err := model.NewCatalog(cfg.Catalog.Products)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}

	// ---- Postgres ----
	if cfg.Database.MigrateOnBoot {
		if err := pg.Migrate(cfg.Database.URL); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}
	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	go observePool(ctx, pool)

	tm := pg.NewTxManager(pool)
	accounts := pg.NewAccountRepo(pool)
	purchases := pg.NewPurchaseRepo(pool)
	unlocks := pg.NewUnlockRepo(pool)
	refunds := pg.NewRefundRepo(pool)
	usage := pg.NewUsageRepo(pool)

	// ---- Redis ----
	var (
		locker  red.Locker
		limiter api.RateLimiter
	)
	if cfg.Redis.URL != "" {
		rc, err := red.NewClient(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		defer rc.Close()
		locker = red.NewLocker(rc)
		limiter = red.NewRateLimiter(rc)
	} else {
		logger.Warn().Msg("redis not configured; confirm rate limit disabled")
	}

	// ---- Credentials ----
	key := cfg.Security.EncryptionKey
	if !security.ValidKeyLength(key) {
		// only reachable in dev; validation rejects it otherwise
		sum := sha256.Sum256([]byte("course-entitlement-dev:" + key))
		key = string(sum[:])
		logger.Warn().Msg("security.encryption_key unusable; using a derived dev key (INSECURE)")
	}
	cipher, err := security.NewCredentialCipher(key)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	// ---- Processors ----
	processors := buildProcessors(cfg)
	for ch, p := range processors {
		logger.Info().Str("channel", string(ch)).Str("processor", p.Name()).Msg("payment processor ready")
	}

	// ---- Use cases ----
	confirmUC := usecase.NewConfirmUseCase(catalog, processors, accounts, purchases, unlocks, tm,
		cfg.Payment.Timeout, cfg.Retention.IntentTTL, logger)
	clawbackUC := usecase.NewClawbackUseCase(catalog, accounts, purchases, tm, logger)
	webhookUC := usecase.NewWebhookUseCase(catalog, confirmUC, clawbackUC, logger)
	refundUC := usecase.NewRefundUseCase(catalog, processors, accounts, purchases, refunds, usage, tm,
		cfg.Payment.Timeout, logger)
	accountUC := usecase.NewAccountUseCase(catalog, accounts, purchases, unlocks, cipher, tm, cfg.Runtime.Dev, logger)
	renewalUC := usecase.NewRenewalUseCase(catalog, processors[model.ChannelCard], cipher, accounts, purchases, unlocks, tm,
		cfg.Renewal.Window, cfg.Renewal.Workers, cfg.Renewal.Batch, cfg.Payment.Timeout, logger)
	retentionUC := usecase.NewRetentionUseCase(purchases, unlocks,
		cfg.Retention.PurchaseRetention, cfg.Retention.IntentTTL, cfg.Retention.CompletedIntents, logger)

	// ---- Workers ----
	// Runs before the postgres and redis closes deferred above.
	var workers sync.WaitGroup
	defer func() {
		stop()
		workers.Wait()
		logger.Info().Msg("workers stopped")
	}()
	if cfg.Renewal.Enabled {
		w := sched.NewRenewalWorker(cfg.Renewal.Interval, cfg.Renewal.LockTTL, renewalUC, locker, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = w.Run(ctx)
		}()
	}
	if cfg.Retention.Enabled {
		w := sched.NewRetentionWorker(cfg.Retention.Interval, retentionUC, locker, logger)
		workers.Add(1)
		go func() {
			defer workers.Done()
			_ = w.Run(ctx)
		}()
	}

	// ---- HTTP ----
	srv := api.NewServer(confirmUC, accountUC, refundUC, webhookUC,
		security.NewIdentityResolver(cfg.Auth.JWTSecret, cfg.Auth.Issuer), limiter,
		api.Options{
			WebhookSecret:    cfg.Payment.InApp.WebhookSecret,
			ConfirmRateLimit: cfg.Server.ConfirmRateLimit,
			RequestTimeout:   cfg.Server.WriteTimeout,
			Dev:              cfg.Runtime.Dev,
		}, logger)
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Routes(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout + 5*time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", server.Addr).Str("version", version).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown requested")
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info().Msg("bye")
	return nil
}

func buildProcessors(cfg *config.Config) usecase.Processors {
	if cfg.Payment.Noop {
		return usecase.Processors{
			model.ChannelCard:  payment.NewNoopProcessor("noop-card"),
			model.ChannelInApp: payment.NewNoopProcessor("noop-store"),
		}
	}
	hc := &http.Client{Timeout: cfg.Payment.Timeout}
	var card, store adapter.PaymentProcessor
	card = payment.NewCardGateway(cfg.Payment.Card.BaseURL, cfg.Payment.Card.SecretKey, hc)
	store = payment.NewStoreVerifier(cfg.Payment.InApp.BaseURL, cfg.Payment.InApp.APIKey, hc)
	return usecase.Processors{model.ChannelCard: card, model.ChannelInApp: store}
}

func observePool(ctx context.Context, pool *pgxpool.Pool) {
	t := time.NewTicker(15 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			metrics.ObservePool(pool.Stat())
		}
	}
}
