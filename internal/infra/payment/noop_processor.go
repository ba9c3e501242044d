package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"course-entitlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*NoopProcessor)(nil)

// NoopProcessor approves everything. It is meant for local runs only.
type NoopProcessor struct {
	name string

	mu  sync.Mutex
	seq int64
}

func NewNoopProcessor(name string) *NoopProcessor {
	return &NoopProcessor{name: name}
}

func (p *NoopProcessor) Name() string { return p.name }

func (p *NoopProcessor) next() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	return fmt.Sprintf("noop-%s-%d", p.name, p.seq)
}

func (p *NoopProcessor) Confirm(ctx context.Context, proof adapter.PaymentProof) (adapter.Verification, error) {
	return adapter.Verification{
		TransactionID: proof.Token,
		Amount:        proof.Amount,
		Method:        "noop",
		ApprovedAt:    time.Now().UTC(),
	}, nil
}

func (p *NoopProcessor) Charge(ctx context.Context, credential string, amount int64, orderID, orderName string) (adapter.ChargeResult, error) {
	return adapter.ChargeResult{TransactionID: p.next(), ApprovedAt: time.Now().UTC()}, nil
}

func (p *NoopProcessor) Cancel(ctx context.Context, transactionID string, amount int64, reason, idempotencyKey string) error {
	return nil
}
