package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"course-entitlement/internal/domain"
)

type PlatformEventType string

const (
	EventInitialPurchase     PlatformEventType = "INITIAL_PURCHASE"
	EventRenewal             PlatformEventType = "RENEWAL"
	EventNonRenewingPurchase PlatformEventType = "NON_RENEWING_PURCHASE"
	EventRefund              PlatformEventType = "REFUND"
)

// IsPurchase reports whether the event grants something.
func (t PlatformEventType) IsPurchase() bool {
	return t == EventInitialPurchase || t == EventRenewal || t == EventNonRenewingPurchase
}

// PlatformEvent is the validated form of an in-app store webhook. Nothing
// loosely typed crosses this boundary.
type PlatformEvent struct {
	ID            string
	Type          PlatformEventType
	AccountID     string
	ProductID     string
	TransactionID string
	Price         int64
	PurchasedAt   time.Time
}

type platformEnvelope struct {
	Event *struct {
		ID            string          `json:"id"`
		Type          string          `json:"type"`
		AppUserID     string          `json:"app_user_id"`
		ProductID     string          `json:"product_id"`
		TransactionID string          `json:"transaction_id"`
		Price         json.RawMessage `json:"price"` // integer, minor currency units
		PurchasedAtMs *int64          `json:"purchased_at_ms"`
	} `json:"event"`
}

// ParsePlatformEvent validates a raw webhook body. Unknown event types yield
// domain.ErrIgnoredEvent; malformed payloads yield domain.ErrInvalidRequest.
func ParsePlatformEvent(body []byte) (*PlatformEvent, error) {
	var env platformEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err)
	}
	if env.Event == nil {
		return nil, fmt.Errorf("%w: missing event", domain.ErrInvalidRequest)
	}
	raw := env.Event
	typ := PlatformEventType(strings.ToUpper(strings.TrimSpace(raw.Type)))
	switch typ {
	case EventInitialPurchase, EventRenewal, EventNonRenewingPurchase, EventRefund:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrIgnoredEvent, raw.Type)
	}
	ev := &PlatformEvent{
		ID:            strings.TrimSpace(raw.ID),
		Type:          typ,
		AccountID:     strings.TrimSpace(raw.AppUserID),
		ProductID:     strings.TrimSpace(raw.ProductID),
		TransactionID: strings.TrimSpace(raw.TransactionID),
	}
	if ev.TransactionID == "" {
		return nil, fmt.Errorf("%w: missing transaction_id", domain.ErrInvalidRequest)
	}
	if typ.IsPurchase() && (ev.AccountID == "" || ev.ProductID == "") {
		return nil, fmt.Errorf("%w: purchase event needs app_user_id and product_id", domain.ErrInvalidRequest)
	}
	if len(raw.Price) > 0 && string(raw.Price) != "null" {
		price, err := strconv.ParseInt(string(raw.Price), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: price must be an integer amount in minor units, got %s", domain.ErrInvalidRequest, raw.Price)
		}
		if price < 0 {
			return nil, fmt.Errorf("%w: negative price", domain.ErrInvalidRequest)
		}
		ev.Price = price
	}
	if raw.PurchasedAtMs != nil && *raw.PurchasedAtMs > 0 {
		ev.PurchasedAt = time.UnixMilli(*raw.PurchasedAtMs).UTC()
	}
	return ev, nil
}
