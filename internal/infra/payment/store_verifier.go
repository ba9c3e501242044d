package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"course-entitlement/internal/domain/ports/adapter"
)

var _ adapter.PaymentProcessor = (*StoreVerifier)(nil)

// StoreVerifier checks in-app transactions against the store platform's REST API.
// The store settles and refunds on its own, so Charge and Cancel are unsupported.
type StoreVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewStoreVerifier(baseURL, apiKey string, client *http.Client) *StoreVerifier {
	if client == nil {
		client = &http.Client{}
	}
	return &StoreVerifier{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey, client: client}
}

func (s *StoreVerifier) Name() string { return "store" }

type storeTransaction struct {
	TransactionID string          `json:"transaction_id"`
	ProductID     string          `json:"product_id"`
	AppUserID     string          `json:"app_user_id"`
	Price         json.RawMessage `json:"price"` // integer, minor currency units
	PurchasedAtMs int64           `json:"purchased_at"`
	Status        string          `json:"status"`
}

// Confirm looks the transaction up and reports what the store says was bought and by whom.
func (s *StoreVerifier) Confirm(ctx context.Context, proof adapter.PaymentProof) (adapter.Verification, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/transactions/"+url.PathEscape(proof.Token), nil)
	if err != nil {
		return adapter.Verification{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return adapter.Verification{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return adapter.Verification{}, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		if isRejection(resp.StatusCode) {
			return adapter.Verification{}, &adapter.RejectionError{Processor: s.Name(), Code: fmt.Sprintf("HTTP_%d", resp.StatusCode), Message: "transaction not verifiable"}
		}
		return adapter.Verification{}, fmt.Errorf("store api: status %d", resp.StatusCode)
	}

	var tx storeTransaction
	if err := json.Unmarshal(body, &tx); err != nil {
		return adapter.Verification{}, fmt.Errorf("failed to unmarshal response: %w, body: %s", err, string(body))
	}
	switch strings.ToUpper(tx.Status) {
	case "", "PAID", "ACTIVE", "COMPLETED":
	default:
		return adapter.Verification{}, &adapter.RejectionError{Processor: s.Name(), Code: "STATUS_" + strings.ToUpper(tx.Status), Message: "transaction not in a paid state"}
	}

	v := adapter.Verification{
		TransactionID: tx.TransactionID,
		Method:        "in_app",
		ProductID:     tx.ProductID,
		AccountID:     tx.AppUserID,
	}
	if v.TransactionID == "" {
		v.TransactionID = proof.Token
	}
	if len(tx.Price) > 0 && string(tx.Price) != "null" {
		amount, err := strconv.ParseInt(string(tx.Price), 10, 64)
		if err != nil || amount < 0 {
			return adapter.Verification{}, &adapter.RejectionError{Processor: s.Name(), Code: "INVALID_PRICE", Message: "price is not an integer amount: " + string(tx.Price)}
		}
		v.Amount = amount
	}
	if tx.PurchasedAtMs > 0 {
		v.ApprovedAt = time.UnixMilli(tx.PurchasedAtMs).UTC()
	}
	return v, nil
}

func (s *StoreVerifier) Charge(ctx context.Context, credential string, amount int64, orderID, orderName string) (adapter.ChargeResult, error) {
	return adapter.ChargeResult{}, errUnsupported(s.Name(), "charge")
}

func (s *StoreVerifier) Cancel(ctx context.Context, transactionID string, amount int64, reason, idempotencyKey string) error {
	return errUnsupported(s.Name(), "cancel")
}
