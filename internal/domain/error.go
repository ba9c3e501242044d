package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrAlreadyExists      = errors.New("entity already exists")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrInvalidExecContext = errors.New("invalid execution context")
	ErrOperationFailed    = errors.New("database operation failed")
	ErrReadDatabaseRow    = errors.New("failed to read database row")

	// Identity
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// Confirmation
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnknownProduct = fmt.Errorf("%w: unknown product", ErrInvalidRequest)
	ErrInvalidAmount  = errors.New("amount does not match catalog price")
	ErrInvalidIntent  = errors.New("unlock intent is missing, consumed or does not match")
	ErrIgnoredEvent   = errors.New("event type ignored")

	// Processor outcomes. ErrProcessorUnavailable is retryable; the others are definitive rejections.
	ErrConfirmFailed        = errors.New("payment confirmation rejected by processor")
	ErrChargeFailed         = errors.New("charge rejected by processor")
	ErrCancelFailed         = errors.New("cancel rejected by processor")
	ErrProcessorUnavailable = errors.New("payment processor unavailable")
	ErrUnsupportedOperation = errors.New("operation not supported by processor")

	// Refunds
	ErrIneligibleForRefund = errors.New("not eligible for refund")
	ErrRefundNotPending    = errors.New("refund request is not pending")

	// Billing
	ErrNoBillingCredential = errors.New("no billing credential stored")
	ErrAccountWithdrawn    = errors.New("account is withdrawn")
)

// IneligibleForRefundError explains which refund condition failed.
type IneligibleForRefundError struct {
	Reason         string
	DaysElapsed    int
	CompletedCount int
	UnlockedCount  int
	ViewedCount    int
}

func (e *IneligibleForRefundError) Error() string {
	switch e.Reason {
	case RefundReasonWindow:
		return fmt.Sprintf("not eligible for refund: %d days since purchase exceeds the 7 day window", e.DaysElapsed)
	case RefundReasonUsage:
		return fmt.Sprintf("not eligible for refund: content used since purchase (completed=%d, unlocked=%d, viewed=%d)",
			e.CompletedCount, e.UnlockedCount, e.ViewedCount)
	case RefundReasonStore:
		return "not eligible for refund: in-app store purchases are refunded through the store that sold them"
	default:
		return "not eligible for refund: " + e.Reason
	}
}

func (e *IneligibleForRefundError) Unwrap() error { return ErrIneligibleForRefund }

const (
	RefundReasonWindow  = "window_elapsed"
	RefundReasonUsage   = "usage_recorded"
	RefundReasonNotPaid = "purchase_not_paid"
	RefundReasonNotSubs = "not_subscription"
	RefundReasonStore   = "store_purchase"
)
