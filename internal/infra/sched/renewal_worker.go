package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/infra/redis"
	"course-entitlement/internal/usecase"
)

const renewalLockKey = "lock:renewal"

// RenewalWorker periodically bills auto-renewing accounts via the use case.
type RenewalWorker struct {
	interval time.Duration
	lockTTL  time.Duration
	uc       usecase.RenewalUseCase
	locker   redis.Locker
	log      *zerolog.Logger
	now      func() time.Time
}

func NewRenewalWorker(interval, lockTTL time.Duration, uc usecase.RenewalUseCase, locker redis.Locker, logger *zerolog.Logger) *RenewalWorker {
	l := logger.With().Str("component", "RenewalWorker").Logger()
	if interval <= 0 {
		interval = time.Hour
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &RenewalWorker{
		interval: interval,
		lockTTL:  lockTTL,
		uc:       uc,
		locker:   locker,
		log:      &l,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *RenewalWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting renewal worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping renewal worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RenewalWorker) tick(ctx context.Context) {
	_, err := runLocked(ctx, w.locker, renewalLockKey, w.lockTTL, w.log, func(ctx context.Context) error {
		report, err := w.uc.RunOnce(ctx, w.now())
		if err != nil {
			return err
		}
		for _, re := range report.Errors {
			w.log.Warn().Str("account_id", re.AccountID).Err(re.Err).Msg("renewal failed")
		}
		return nil
	})
	if err != nil {
		w.log.Error().Err(err).Msg("renewal worker error")
	}
}
