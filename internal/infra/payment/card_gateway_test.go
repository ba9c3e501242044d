//go:build !integration

package payment

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"course-entitlement/internal/domain/ports/adapter"
)

func TestCardGateway(t *testing.T) {
	ctx := context.Background()

	t.Run("should confirm with basic auth and an idempotency key", func(t *testing.T) {
		// --- Arrange ---
		var gotBody map[string]interface{}
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/payments/confirm" || r.Method != http.MethodPost {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			wantAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("sk_test:"))
			if got := r.Header.Get("Authorization"); got != wantAuth {
				t.Errorf("expected auth %q, got %q", wantAuth, got)
			}
			if got := r.Header.Get("Idempotency-Key"); got != "order-1" {
				t.Errorf("expected idempotency key order-1, got %q", got)
			}
			_ = json.NewDecoder(r.Body).Decode(&gotBody)
			_, _ = w.Write([]byte(`{"paymentKey":"pk-1","orderId":"order-1","status":"DONE","totalAmount":9900,"method":"CARD","approvedAt":"2025-03-01T21:00:00+09:00"}`))
		}))
		defer srv.Close()
		g := NewCardGateway(srv.URL, "sk_test", srv.Client())

		// --- Act ---
		v, err := g.Confirm(ctx, adapter.PaymentProof{OrderID: "order-1", Token: "pk-1", Amount: 9900})

		// --- Assert ---
		if err != nil {
			t.Fatalf("expected no error, but got: %v", err)
		}
		if v.TransactionID != "pk-1" || v.Amount != 9900 {
			t.Errorf("unexpected verification: %+v", v)
		}
		if want := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC); !v.ApprovedAt.Equal(want) {
			t.Errorf("expected approvedAt %v, got %v", want, v.ApprovedAt)
		}
		if gotBody["paymentKey"] != "pk-1" || gotBody["orderId"] != "order-1" || gotBody["amount"] != float64(9900) {
			t.Errorf("unexpected request body: %v", gotBody)
		}
	})

	t.Run("should map a 4xx answer to a rejection", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"REJECT_CARD_COMPANY","message":"card declined"}`))
		}))
		defer srv.Close()
		g := NewCardGateway(srv.URL, "sk_test", srv.Client())

		_, err := g.Confirm(ctx, adapter.PaymentProof{OrderID: "o", Token: "t", Amount: 1})

		var rej *adapter.RejectionError
		if !errors.As(err, &rej) || rej.Code != "REJECT_CARD_COMPANY" {
			t.Fatalf("expected a RejectionError, got %v", err)
		}
	})

	for _, status := range []int{http.StatusInternalServerError, http.StatusTooManyRequests} {
		t.Run("should treat "+http.StatusText(status)+" as retryable", func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer srv.Close()
			g := NewCardGateway(srv.URL, "sk_test", srv.Client())

			_, err := g.Charge(ctx, "bk", 100, "renew-1", "Basic monthly")

			var rej *adapter.RejectionError
			if err == nil || errors.As(err, &rej) {
				t.Fatalf("expected a plain error, got %v", err)
			}
		})
	}

	t.Run("should charge the billing key path and cancel with the caller's key", func(t *testing.T) {
		var paths, keys []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			paths = append(paths, r.URL.Path)
			keys = append(keys, r.Header.Get("Idempotency-Key"))
			_, _ = w.Write([]byte(`{"paymentKey":"pk-9","status":"DONE"}`))
		}))
		defer srv.Close()
		g := NewCardGateway(srv.URL, "sk_test", srv.Client())

		res, err := g.Charge(ctx, "bk_123", 9900, "renew-abc", "Basic monthly")
		if err != nil {
			t.Fatal(err)
		}
		if err := g.Cancel(ctx, "pk-9", 9900, "refund", "refund-order-1"); err != nil {
			t.Fatal(err)
		}

		if res.TransactionID != "pk-9" {
			t.Errorf("expected pk-9, got %s", res.TransactionID)
		}
		if paths[0] != "/v1/billing/bk_123" || paths[1] != "/v1/payments/pk-9/cancel" {
			t.Errorf("unexpected paths: %v", paths)
		}
		if keys[0] != "renew-abc" || keys[1] != "refund-order-1" {
			t.Errorf("unexpected idempotency keys: %v", keys)
		}
	})

	t.Run("should give up when the context deadline passes", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()
		g := NewCardGateway(srv.URL, "sk_test", srv.Client())
		cctx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
		defer cancel()

		_, err := g.Confirm(cctx, adapter.PaymentProof{OrderID: "o", Token: "t", Amount: 1})

		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected a deadline error, got %v", err)
		}
	})
}
