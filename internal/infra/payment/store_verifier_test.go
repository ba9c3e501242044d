//go:build !integration

package payment

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"course-entitlement/internal/domain"
	"course-entitlement/internal/domain/ports/adapter"
)

func TestStoreVerifier(t *testing.T) {
	ctx := context.Background()

	t.Run("should report the store's view of the transaction", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/transactions/store-tx-1" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("Authorization") != "Bearer key" {
				t.Errorf("missing bearer key")
			}
			_, _ = w.Write([]byte(`{"transaction_id":"store-tx-1","product_id":"credit_5","app_user_id":"acc-1","price":4900,"purchased_at":1740830400000,"status":"PAID"}`))
		}))
		defer srv.Close()
		s := NewStoreVerifier(srv.URL, "key", srv.Client())

		v, err := s.Confirm(ctx, adapter.PaymentProof{Token: "store-tx-1"})

		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if v.TransactionID != "store-tx-1" || v.ProductID != "credit_5" || v.AccountID != "acc-1" || v.Amount != 4900 {
			t.Errorf("unexpected verification: %+v", v)
		}
		if v.ApprovedAt.UnixMilli() != 1740830400000 {
			t.Errorf("unexpected approvedAt %v", v.ApprovedAt)
		}
	})

	t.Run("should reject refunded and unknown transactions", func(t *testing.T) {
		cases := map[string]func(w http.ResponseWriter){
			"refunded": func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"transaction_id":"x","status":"REFUNDED"}`))
			},
			"missing": func(w http.ResponseWriter) { w.WriteHeader(http.StatusNotFound) },
			"fractional price": func(w http.ResponseWriter) {
				_, _ = w.Write([]byte(`{"transaction_id":"x","price":49.99,"status":"PAID"}`))
			},
		}
		for name, respond := range cases {
			t.Run(name, func(t *testing.T) {
				srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { respond(w) }))
				defer srv.Close()

				_, err := NewStoreVerifier(srv.URL, "key", srv.Client()).Confirm(ctx, adapter.PaymentProof{Token: "x"})

				var rej *adapter.RejectionError
				if !errors.As(err, &rej) {
					t.Fatalf("expected a RejectionError, got %v", err)
				}
			})
		}
	})

	t.Run("should refuse to charge or cancel", func(t *testing.T) {
		s := NewStoreVerifier("http://unused", "key", nil)

		_, chargeErr := s.Charge(ctx, "c", 1, "o", "n")
		cancelErr := s.Cancel(ctx, "t", 1, "r", "k")

		if !errors.Is(chargeErr, domain.ErrUnsupportedOperation) || !errors.Is(cancelErr, domain.ErrUnsupportedOperation) {
			t.Fatalf("expected ErrUnsupportedOperation, got %v / %v", chargeErr, cancelErr)
		}
	})
}

func TestVerifyWebhookSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		header string
		want   bool
	}{
		{"should accept the exact secret", "whsec_abc", "whsec_abc", true},
		{"should reject a different secret", "whsec_abc", "whsec_abd", false},
		{"should reject a prefix", "whsec_abc", "whsec_ab", false},
		{"should reject a bearer-prefixed secret", "whsec_abc", "Bearer whsec_abc", false},
		{"should reject when no secret is configured", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifyWebhookSecret(tc.secret, tc.header); got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
		})
	}
}
