package model

import (
	"time"

	"course-entitlement/internal/domain"
)

type PurchaseStatus string

const (
	PurchaseStatusPaid      PurchaseStatus = "PAID"
	PurchaseStatusCancelled PurchaseStatus = "CANCELLED" // refunded or clawed back; terminal
)

type Channel string

const (
	ChannelCard  Channel = "CARD"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) Valid() bool {
	return c == ChannelCard || c == ChannelInApp
}

// PurchaseRecord is one confirmed monetary event. OrderID is the idempotency key
// and is unique across the ledger.
type PurchaseRecord struct {
	OrderID           string
	AccountID         string
	ProductID         string
	ProductName       string
	Amount            int64
	Status            PurchaseStatus
	Channel           Channel
	ExternalReference string // processor payment / transaction id
	ApprovedAt        time.Time
	CreatedAt         time.Time
}

func NewPurchaseRecord(orderID, accountID string, product *Product, channel Channel, externalRef string, amount int64, approvedAt time.Time) (*PurchaseRecord, error) {
	if orderID == "" || accountID == "" || product == nil || !channel.Valid() {
		return nil, domain.ErrInvalidArgument
	}
	if approvedAt.IsZero() {
		approvedAt = time.Now().UTC()
	}
	return &PurchaseRecord{
		OrderID:           orderID,
		AccountID:         accountID,
		ProductID:         product.ID,
		ProductName:       product.Name,
		Amount:            amount,
		Status:            PurchaseStatusPaid,
		Channel:           channel,
		ExternalReference: externalRef,
		ApprovedAt:        approvedAt.UTC(),
		CreatedAt:         time.Now().UTC(),
	}, nil
}

func (p *PurchaseRecord) IsPaid() bool { return p.Status == PurchaseStatusPaid }
