package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/infra/redis"
	"course-entitlement/internal/usecase"
)

const retentionLockKey = "lock:retention"

// RetentionWorker periodically sweeps expired ledger rows and stale intents.
type RetentionWorker struct {
	interval time.Duration
	uc       usecase.RetentionUseCase
	locker   redis.Locker
	log      *zerolog.Logger
	now      func() time.Time
}

func NewRetentionWorker(interval time.Duration, uc usecase.RetentionUseCase, locker redis.Locker, logger *zerolog.Logger) *RetentionWorker {
	l := logger.With().Str("component", "RetentionWorker").Logger()
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &RetentionWorker{
		interval: interval,
		uc:       uc,
		locker:   locker,
		log:      &l,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (w *RetentionWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting retention worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping retention worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *RetentionWorker) tick(ctx context.Context) {
	_, err := runLocked(ctx, w.locker, retentionLockKey, 10*time.Minute, w.log, func(ctx context.Context) error {
		_, err := w.uc.Sweep(ctx, w.now())
		return err
	})
	if err != nil {
		w.log.Error().Err(err).Msg("retention worker error")
	}
}
