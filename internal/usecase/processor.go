// File: internal/usecase/processor.go
package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/domain/ports/adapter"
	"course-entitlement/internal/infra/metrics"
)

const defaultProcessorTimeout = 10 * time.Second

// Processors maps each purchase channel to the processor that settles it.
type Processors map[model.Channel]adapter.PaymentProcessor

func (ps Processors) For(ch model.Channel) (adapter.PaymentProcessor, error) {
	p, ok := ps[ch]
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: no processor for channel %s", domain.ErrInvalidRequest, ch)
	}
	return p, nil
}

// callProcessor runs fn under a deadline and maps its error onto the domain
// taxonomy. A RejectionError becomes rejected; unsupported operations pass
// through; everything else, including the deadline, is ErrProcessorUnavailable.
func callProcessor(ctx context.Context, p adapter.PaymentProcessor, op string, timeout time.Duration, rejected error, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		timeout = defaultProcessorTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := fn(cctx)
	metrics.ObserveProcessorCall(p.Name(), op, time.Since(start).Milliseconds(), err == nil)
	if err == nil {
		return nil
	}

	var rej *adapter.RejectionError
	switch {
	case errors.As(err, &rej):
		return fmt.Errorf("%w: %s", rejected, rej.Error())
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return err
	case errors.Is(err, domain.ErrInvalidAmount):
		return err
	default:
		return fmt.Errorf("%w: %s %s: %v", domain.ErrProcessorUnavailable, p.Name(), op, err)
	}
}
