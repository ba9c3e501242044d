package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/infra/logging"
)

type errorBody struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

type ineligibleDetails struct {
	Reason         string `json:"reason"`
	DaysElapsed    int    `json:"days_elapsed"`
	CompletedCount int    `json:"completed_count"`
	UnlockedCount  int    `json:"unlocked_count"`
	ViewedCount    int    `json:"viewed_count"`
}

// errorStatus maps a domain error to its HTTP status and public code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, domain.ErrAccountWithdrawn):
		return http.StatusForbidden, "ACCOUNT_WITHDRAWN"
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest, "INVALID_AMOUNT"
	case errors.Is(err, domain.ErrInvalidIntent):
		return http.StatusBadRequest, "INVALID_INTENT"
	case errors.Is(err, domain.ErrNoBillingCredential):
		return http.StatusBadRequest, "NO_BILLING_CREDENTIAL"
	case errors.Is(err, domain.ErrUnsupportedOperation):
		return http.StatusBadRequest, "UNSUPPORTED_OPERATION"
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, domain.ErrConfirmFailed):
		return http.StatusPaymentRequired, "CONFIRM_FAILED"
	case errors.Is(err, domain.ErrChargeFailed):
		return http.StatusPaymentRequired, "CHARGE_FAILED"
	case errors.Is(err, domain.ErrCancelFailed):
		return http.StatusPaymentRequired, "CANCEL_FAILED"
	case errors.Is(err, domain.ErrProcessorUnavailable):
		return http.StatusServiceUnavailable, "PROCESSOR_UNAVAILABLE"
	case errors.Is(err, domain.ErrIneligibleForRefund):
		return http.StatusConflict, "INELIGIBLE"
	case errors.Is(err, domain.ErrRefundNotPending):
		return http.StatusConflict, "REFUND_NOT_PENDING"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "ALREADY_EXISTS"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func writeError(w http.ResponseWriter, r *http.Request, logger *zerolog.Logger, err error) {
	status, code := errorStatus(err)
	body := errorBody{Code: code, Message: err.Error()}

	var inel *domain.IneligibleForRefundError
	if errors.As(err, &inel) {
		body.Details = ineligibleDetails{
			Reason:         inel.Reason,
			DaysElapsed:    inel.DaysElapsed,
			CompletedCount: inel.CompletedCount,
			UnlockedCount:  inel.UnlockedCount,
			ViewedCount:    inel.ViewedCount,
		}
	}

	l := logging.With(r.Context(), logger)
	if status >= http.StatusInternalServerError {
		l.Error().Err(err).Int("status", status).Msg("request failed")
		if status == http.StatusInternalServerError {
			body.Message = "internal error"
		}
	} else {
		l.Debug().Err(err).Int("status", status).Msg("request rejected")
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

const maxBodyBytes = 1 << 20

// decodeJSON strictly decodes a single JSON object into dst.
func decodeJSON(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("%w: missing body", domain.ErrInvalidRequest)
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	return nil
}
