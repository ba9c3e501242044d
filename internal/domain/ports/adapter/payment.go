package adapter

import (
	"context"
	"fmt"
	"time"
)

// PaymentProof is what a channel hands over as evidence of payment.
type PaymentProof struct {
	OrderID   string // idempotency key
	Token     string // card payment key, or the store transaction id
	Amount    int64  // amount the client claims; 0 when the channel does not state one
	ProductID string
	AccountID string
}

// Verification is the processor's authoritative answer for a proof.
type Verification struct {
	TransactionID string
	Amount        int64 // 0 when the processor does not report one
	Method        string
	ProductID     string // set by store verifiers
	AccountID     string // set by store verifiers
	ApprovedAt    time.Time
}

type ChargeResult struct {
	TransactionID string
	ApprovedAt    time.Time
}

// RejectionError is a definitive "no" from a processor. Anything else a
// processor returns (transport errors, timeouts, 5xx) is treated as retryable.
type RejectionError struct {
	Processor string
	Code      string
	Message   string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s rejected: %s %s", e.Processor, e.Code, e.Message)
}

// PaymentProcessor is the hex port for payment processors. Every call carries
// an idempotency key so that retries are safe at the processor.
type PaymentProcessor interface {
	Name() string

	// Confirm is verifyOrConfirm: it finalizes or checks the payment behind proof.
	Confirm(ctx context.Context, proof PaymentProof) (Verification, error)
	// Charge bills a stored credential; orderID doubles as the idempotency key.
	Charge(ctx context.Context, credential string, amount int64, orderID, orderName string) (ChargeResult, error)
	// Cancel refunds a settled transaction.
	Cancel(ctx context.Context, transactionID string, amount int64, reason, idempotencyKey string) error
}

// CredentialCipher protects stored billing credentials at rest.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
