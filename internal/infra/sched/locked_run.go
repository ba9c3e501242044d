package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/infra/redis"
)

// runLocked runs fn while holding key. A nil locker runs fn unguarded, which
// is only safe with a single instance. It reports whether fn ran.
func runLocked(ctx context.Context, locker redis.Locker, key string, ttl time.Duration, log *zerolog.Logger, fn func(ctx context.Context) error) (bool, error) {
	if locker == nil {
		return true, fn(ctx)
	}
	token, err := locker.TryLock(ctx, key, ttl)
	if errors.Is(err, redis.ErrLockHeld) {
		log.Debug().Str("lock", key).Msg("another instance holds the lock; skipping cycle")
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer func() {
		// release with a fresh context so shutdown does not strand the lock until ttl
		uctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := locker.Unlock(uctx, key, token); err != nil {
			log.Warn().Err(err).Str("lock", key).Msg("failed to release lock")
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, ttl)
	defer cancel()
	return true, fn(rctx)
}
