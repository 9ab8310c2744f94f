package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type SaleRequest struct {
	EventID       snowflake.ID `json:"-"`
	CategoryID    snowflake.ID `json:"category_id"`
	Quantity      int64        `json:"quantity"`
	CustomerID    string       `json:"customer_id"`
	PromoCode     string       `json:"promo_code"`
	TransactionID string       `json:"transaction_id"`
}

// Sale is the outcome of a completed checkout. Total is what the ledger recorded.
type Sale struct {
	TransactionID string       `json:"transaction_id"`
	EventID       snowflake.ID `json:"event_id"`
	CategoryID    snowflake.ID `json:"category_id"`
	Quantity      int64        `json:"quantity"`
	Currency      string       `json:"currency"`
	Subtotal      int64        `json:"subtotal"`
	Discount      int64        `json:"discount"`
	Total         int64        `json:"total"`
	PromoCode     string       `json:"promo_code,omitempty"`
}

type RefundRequest struct {
	EventID    snowflake.ID `json:"-"`
	CategoryID snowflake.ID `json:"category_id"`
	Quantity   int64        `json:"quantity"`
	Amount     int64        `json:"amount"`
	Reference  string       `json:"reference"`
}

type Refund struct {
	Reference string       `json:"reference"`
	EventID   snowflake.ID `json:"event_id"`
	Amount    int64        `json:"amount"`
	Quantity  int64        `json:"quantity"`
	Replayed  bool         `json:"replayed"`
}

type ChargeRequest struct {
	EventID       snowflake.ID
	TransactionID string
	CustomerID    string
	Amount        int64
	Currency      string
}

// Charger collects payment for a sale. A nil Charger treats every sale as paid.
type Charger interface {
	Charge(ctx context.Context, req ChargeRequest) error
}

type Service interface {
	Sell(ctx context.Context, req SaleRequest) (Sale, error)
	Refund(ctx context.Context, req RefundRequest) (Refund, error)
}

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "pending"
	SaleStatusCompleted SaleStatus = "completed"
)

// SaleRecord claims a transaction id for one event. The claim is written before
// any inventory moves, so a transaction id sells at most once, free sales included.
type SaleRecord struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID       snowflake.ID `gorm:"not null" json:"event_id"`
	TransactionID string       `gorm:"not null" json:"transaction_id"`
	CategoryID    snowflake.ID `gorm:"not null" json:"category_id"`
	Quantity      int64        `gorm:"not null" json:"quantity"`
	Subtotal      int64        `gorm:"not null" json:"subtotal"`
	Discount      int64        `gorm:"not null" json:"discount"`
	Total         int64        `gorm:"not null" json:"total"`
	Currency      string       `gorm:"not null" json:"currency"`
	Status        SaleStatus   `gorm:"type:text;not null" json:"status"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (SaleRecord) TableName() string { return "checkout_sales" }
