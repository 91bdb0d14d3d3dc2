package domain

import "time"

// UpgradeKind is what a purchase improves.
type UpgradeKind string

const (
	UpgradeGPU     UpgradeKind = "gpu"
	UpgradeCooling UpgradeKind = "cooling"
)

// UpgradeOffer is a purchasable catalog entry priced in Telegram Stars.
type UpgradeOffer struct {
	ID         string      `json:"id"`
	Title      string      `json:"title"`
	Kind       UpgradeKind `json:"kind"`
	Power      int         `json:"power"`
	PriceStars int64       `json:"price_stars"`
}

// InvoiceStatus - статус счёта
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "pending"
	InvoiceStatusPaid    InvoiceStatus = "paid"
	InvoiceStatusExpired InvoiceStatus = "expired"
)

// Invoice is a purchase intent; ID doubles as the provider payload.
type Invoice struct {
	ID         string        `db:"id" json:"id"`
	UserID     int64         `db:"user_id" json:"user_id"`
	OfferID    string        `db:"offer_id" json:"offer_id"`
	Kind       UpgradeKind   `db:"kind" json:"kind"`
	Power      int           `db:"power" json:"power"`
	PriceStars int64         `db:"price_stars" json:"price_stars"`
	Status     InvoiceStatus `db:"status" json:"status"`
	PaymentID  string        `db:"payment_id" json:"payment_id,omitempty"`
	Link       string        `db:"-" json:"link,omitempty"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	PaidAt     *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
}

// PaymentEvent is a confirmed payment delivered by the payment collaborator.
type PaymentEvent struct {
	PaymentID string      `json:"payment_id"`
	UserID    int64       `json:"user_id"`
	Kind      UpgradeKind `json:"kind"`
	Power     int         `json:"power"`
	InvoiceID string      `json:"invoice_id,omitempty"`
	Amount    int64       `json:"amount,omitempty"`
}
