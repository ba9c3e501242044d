//go:build !integration

package sched

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"course-entitlement/internal/infra/redis"
	"course-entitlement/internal/usecase"
)

type mockLocker struct {
	mu       sync.Mutex
	held     map[string]string
	unlocked []string
	TryErr   error
}

var _ redis.Locker = (*mockLocker)(nil)

func newMockLocker() *mockLocker { return &mockLocker{held: map[string]string{}} }

func (m *mockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.TryErr != nil {
		return "", m.TryErr
	}
	if _, ok := m.held[key]; ok {
		return "", redis.ErrLockHeld
	}
	m.held[key] = "tok-" + key
	return m.held[key], nil
}

func (m *mockLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] == token {
		delete(m.held, key)
	}
	m.unlocked = append(m.unlocked, key)
	return nil
}

type mockRenewalUC struct {
	RunOnceFunc func(ctx context.Context, now time.Time) (*usecase.RenewalReport, error)
	calls       int
}

func (m *mockRenewalUC) RunOnce(ctx context.Context, now time.Time) (*usecase.RenewalReport, error) {
	m.calls++
	if m.RunOnceFunc != nil {
		return m.RunOnceFunc(ctx, now)
	}
	return &usecase.RenewalReport{}, nil
}

type mockRetentionUC struct {
	calls int
	last  time.Time
}

func (m *mockRetentionUC) Sweep(ctx context.Context, now time.Time) (*usecase.RetentionReport, error) {
	m.calls++
	m.last = now
	return &usecase.RetentionReport{}, nil
}

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}
