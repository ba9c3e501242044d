package payment

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*CardGateway)(nil)

// CardGateway talks to a Toss-Payments-style card REST API.
type CardGateway struct {
	baseURL   string
	secretKey string
	client    *http.Client
}

// NewCardGateway creates a card processor client. Deadlines come from the
// caller's context, so the http.Client carries no timeout of its own.
func NewCardGateway(baseURL, secretKey string, client *http.Client) *CardGateway {
	if client == nil {
		client = &http.Client{}
	}
	return &CardGateway{
		baseURL:   strings.TrimRight(baseURL, "/"),
		secretKey: secretKey,
		client:    client,
	}
}

func (g *CardGateway) Name() string { return "card" }

type cardPayment struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Method      string `json:"method"`
	ApprovedAt  string `json:"approvedAt"`
}

type cardError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Confirm finalizes a client-authorized payment.
func (g *CardGateway) Confirm(ctx context.Context, proof adapter.PaymentProof) (adapter.Verification, error) {
	reqBody := map[string]interface{}{
		"paymentKey": proof.Token,
		"orderId":    proof.OrderID,
		"amount":     proof.Amount,
	}
	var p cardPayment
	if err := g.post(ctx, "/v1/payments/confirm", proof.OrderID, reqBody, &p); err != nil {
		return adapter.Verification{}, err
	}
	if p.Status != "" && p.Status != "DONE" {
		return adapter.Verification{}, &adapter.RejectionError{Processor: g.Name(), Code: "STATUS_" + p.Status, Message: "payment not completed"}
	}
	key := p.PaymentKey
	if key == "" {
		key = proof.Token
	}
	return adapter.Verification{
		TransactionID: key,
		Amount:        p.TotalAmount,
		Method:        p.Method,
		ApprovedAt:    parseApprovedAt(p.ApprovedAt),
	}, nil
}

// Charge bills a stored billing key. orderID is also the idempotency key.
func (g *CardGateway) Charge(ctx context.Context, credential string, amount int64, orderID, orderName string) (adapter.ChargeResult, error) {
	reqBody := map[string]interface{}{
		"amount":    amount,
		"orderId":   orderID,
		"orderName": orderName,
	}
	var p cardPayment
	if err := g.post(ctx, "/v1/billing/"+url.PathEscape(credential), orderID, reqBody, &p); err != nil {
		return adapter.ChargeResult{}, err
	}
	if p.Status != "" && p.Status != "DONE" {
		return adapter.ChargeResult{}, &adapter.RejectionError{Processor: g.Name(), Code: "STATUS_" + p.Status, Message: "charge not completed"}
	}
	return adapter.ChargeResult{TransactionID: p.PaymentKey, ApprovedAt: parseApprovedAt(p.ApprovedAt)}, nil
}

// Cancel refunds amount of a settled payment.
func (g *CardGateway) Cancel(ctx context.Context, transactionID string, amount int64, reason, idempotencyKey string) error {
	reqBody := map[string]interface{}{
		"cancelReason": reason,
		"cancelAmount": amount,
	}
	return g.post(ctx, "/v1/payments/"+url.PathEscape(transactionID)+"/cancel", idempotencyKey, reqBody, nil)
}

// post sends one JSON request. 4xx answers (other than 408 and 429) are
// definitive rejections; everything else that fails is a plain, retryable error.
func (g *CardGateway) post(ctx context.Context, path, idempotencyKey string, in interface{}, out interface{}) error {
	jsonData, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request data: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(g.secretKey+":")))
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 300 {
		var ce cardError
		_ = json.Unmarshal(body, &ce)
		if isRejection(resp.StatusCode) {
			if ce.Code == "" {
				ce.Code = fmt.Sprintf("HTTP_%d", resp.StatusCode)
			}
			return &adapter.RejectionError{Processor: g.Name(), Code: ce.Code, Message: ce.Message}
		}
		return fmt.Errorf("card api: status %d: %s", resp.StatusCode, ce.Message)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	return nil
}

func isRejection(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests
}

func parseApprovedAt(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}

// errUnsupported builds the error a processor returns for an operation it cannot perform.
func errUnsupported(processor, op string) error {
	return fmt.Errorf("%w: %s cannot %s", domain.ErrUnsupportedOperation, processor, op)
}
