package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/model"
	"course-entitlement/internal/infra/logging"
	"course-entitlement/internal/infra/payment"
	"course-entitlement/internal/usecase"
)

type cardConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
	AccountID  string `json:"accountId"`
	ProductID  string `json:"productId"`
	IntentID   string `json:"intentId,omitempty"`
}

type inAppConfirmRequest struct {
	TransactionID string `json:"transactionId"`
	AccountID     string `json:"accountId"`
	ProductID     string `json:"productId"`
	IntentID      string `json:"intentId,omitempty"`
}

type confirmResponse struct {
	OrderID     string            `json:"orderId"`
	Duplicate   bool              `json:"duplicate"`
	Effect      model.EffectKind  `json:"effect,omitempty"`
	Entitlement model.Entitlement `json:"entitlement"`
}

type credentialRequest struct {
	Credential string `json:"credential"`
}

type unlockIntentRequest struct {
	ResourceID string `json:"resourceId"`
	ProductID  string `json:"productId"`
}

type unlockIntentResponse struct {
	ID         string             `json:"id"`
	ResourceID string             `json:"resourceId"`
	ProductID  string             `json:"productId"`
	Status     model.IntentStatus `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type refundSubmitRequest struct {
	PaymentID string `json:"paymentId"`
	Reason    string `json:"reason"`
}

type refundDecisionRequest struct {
	Note string `json:"note"`
}

type refundResponse struct {
	ID                string             `json:"id"`
	PaymentID         string             `json:"paymentId"`
	AccountID         string             `json:"accountId"`
	Amount            int64              `json:"amount"`
	CancelReason      string             `json:"cancelReason"`
	Status            model.RefundStatus `json:"status"`
	SnapshotTier      model.Tier         `json:"snapshotTier"`
	SnapshotExpiresAt *time.Time         `json:"snapshotExpiresAt,omitempty"`
	RequestedAt       time.Time          `json:"requestedAt"`
	ProcessedAt       *time.Time         `json:"processedAt,omitempty"`
	ProcessedBy       *string            `json:"processedBy,omitempty"`
	AdminNote         *string            `json:"adminNote,omitempty"`
}

type purchaseResponse struct {
	OrderID     string               `json:"orderId"`
	ProductID   string               `json:"productId"`
	ProductName string               `json:"productName"`
	Amount      int64                `json:"amount"`
	Status      model.PurchaseStatus `json:"status"`
	Channel     model.Channel        `json:"channel"`
	ApprovedAt  time.Time            `json:"approvedAt"`
}

func toRefundResponse(rr *model.RefundRequest) refundResponse {
	return refundResponse{
		ID:                rr.ID,
		PaymentID:         rr.PaymentID,
		AccountID:         rr.AccountID,
		Amount:            rr.Amount,
		CancelReason:      rr.CancelReason,
		Status:            rr.Status,
		SnapshotTier:      rr.SnapshotTier,
		SnapshotExpiresAt: rr.SnapshotExpiresAt,
		RequestedAt:       rr.RequestedAt,
		ProcessedAt:       rr.ProcessedAt,
		ProcessedBy:       rr.ProcessedBy,
		AdminNote:         rr.AdminNote,
	}
}

func callerID(r *http.Request) string {
	if id := identityFrom(r.Context()); id != nil {
		return id.AccountID
	}
	return ""
}

func (s *Server) handleConfirmCard(w http.ResponseWriter, r *http.Request) {
	var in cardConfirmRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.runConfirm(w, r, usecase.ConfirmRequest{
		Channel:   model.ChannelCard,
		OrderID:   in.OrderID,
		Token:     in.PaymentKey,
		AccountID: in.AccountID,
		ProductID: in.ProductID,
		Amount:    in.Amount,
		IntentID:  in.IntentID,
	})
}

func (s *Server) handleConfirmInApp(w http.ResponseWriter, r *http.Request) {
	var in inAppConfirmRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.runConfirm(w, r, usecase.ConfirmRequest{
		Channel:   model.ChannelInApp,
		Token:     in.TransactionID,
		AccountID: in.AccountID,
		ProductID: in.ProductID,
		IntentID:  in.IntentID,
	})
}

func (s *Server) runConfirm(w http.ResponseWriter, r *http.Request, req usecase.ConfirmRequest) {
	ctx := r.Context()
	if req.OrderID != "" {
		ctx = logging.WithOrderID(ctx, req.OrderID)
	}
	res, err := s.confirm.Confirm(ctx, callerID(r), req)
	if err != nil {
		writeError(w, r.WithContext(ctx), s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmResponse{
		OrderID:     res.OrderID,
		Duplicate:   res.Duplicate,
		Effect:      res.Effect,
		Entitlement: res.Entitlement,
	})
}

func (s *Server) handleGetEntitlement(w http.ResponseWriter, r *http.Request) {
	ent, err := s.account.GetEntitlement(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	list, err := s.account.ListPurchases(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	out := make([]purchaseResponse, 0, len(list))
	for _, p := range list {
		out = append(out, purchaseResponse{
			OrderID:     p.OrderID,
			ProductID:   p.ProductID,
			ProductName: p.ProductName,
			Amount:      p.Amount,
			Status:      p.Status,
			Channel:     p.Channel,
			ApprovedAt:  p.ApprovedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": out})
}

func (s *Server) handleRegisterCredential(w http.ResponseWriter, r *http.Request) {
	var in credentialRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	ent, err := s.account.RegisterBillingCredential(r.Context(), callerID(r), in.Credential)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleCancelAutoRenewal(w http.ResponseWriter, r *http.Request) {
	ent, err := s.account.CancelAutoRenewal(r.Context(), callerID(r))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) handleCreateUnlockIntent(w http.ResponseWriter, r *http.Request) {
	var in unlockIntentRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	intent, err := s.account.CreateUnlockIntent(r.Context(), callerID(r), in.ResourceID, in.ProductID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, unlockIntentResponse{
		ID:         intent.ID,
		ResourceID: intent.ResourceID,
		ProductID:  intent.ProductID,
		Status:     intent.Status,
		CreatedAt:  intent.CreatedAt,
	})
}

func (s *Server) handleSubmitRefund(w http.ResponseWriter, r *http.Request) {
	var in refundSubmitRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	rr, err := s.refund.Submit(r.Context(), callerID(r), in.PaymentID, in.Reason)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRefundResponse(rr))
}

func (s *Server) handleListPendingRefunds(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, r, s.log, domain.ErrInvalidRequest)
			return
		}
		limit = n
	}
	list, err := s.refund.ListPending(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	items := make([]refundResponse, 0, len(list))
	for _, rr := range list {
		items = append(items, toRefundResponse(rr))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) handleApproveRefund(w http.ResponseWriter, r *http.Request) {
	s.decideRefund(w, r, s.refund.Approve)
}

func (s *Server) handleRejectRefund(w http.ResponseWriter, r *http.Request) {
	s.decideRefund(w, r, s.refund.Reject)
}

type refundDecision func(ctx context.Context, adminID, refundID, note string) (*model.RefundRequest, error)

func (s *Server) decideRefund(w http.ResponseWriter, r *http.Request, decide refundDecision) {
	var in refundDecisionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &in); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	rr, err := decide(r.Context(), callerID(r), chi.URLParam(r, "refundID"), in.Note)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toRefundResponse(rr))
}

// handlePlatformWebhook acks everything the platform should not redeliver.
// Only storage and processor failures answer 5xx.
func (s *Server) handlePlatformWebhook(w http.ResponseWriter, r *http.Request) {
	l := logging.With(r.Context(), s.log)
	if !payment.VerifyWebhookSecret(s.opts.WebhookSecret, r.Header.Get("Authorization")) {
		writeError(w, r, s.log, domain.ErrUnauthorized)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, s.log, domain.ErrInvalidRequest)
		return
	}

	ev, err := model.ParsePlatformEvent(body)
	if err != nil {
		if !errors.Is(err, domain.ErrIgnoredEvent) {
			l.Warn().Err(err).Msg("dropping malformed platform event")
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": string(usecase.WebhookIgnored)})
		return
	}

	out, err := s.webhook.HandlePlatformEvent(r.Context(), ev)
	if err != nil {
		status, _ := errorStatus(err)
		if status < http.StatusInternalServerError {
			l.Warn().Err(err).Str("event_id", ev.ID).Msg("platform event rejected; acking")
			writeJSON(w, http.StatusOK, map[string]string{"status": string(usecase.WebhookIgnored)})
			return
		}
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(out)})
}
