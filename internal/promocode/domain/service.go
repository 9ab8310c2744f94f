package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreatePromoCodeRequest struct {
	EventID           snowflake.ID   `json:"-"`
	Code              string         `json:"code"`
	Kind              Kind           `json:"kind"`
	Value             int64          `json:"value"`
	UsageLimit        *int64         `json:"usage_limit"`
	PerCustomerLimit  *int64         `json:"per_customer_limit"`
	MinPurchaseAmount *int64         `json:"min_purchase_amount"`
	MaxDiscountAmount *int64         `json:"max_discount_amount"`
	ValidFrom         *time.Time     `json:"valid_from"`
	ValidUntil        *time.Time     `json:"valid_until"`
	CategoryIDs       []snowflake.ID `json:"category_ids"`
}

// UpdatePromoCodeRequest patches a code; nil fields are left unchanged.
type UpdatePromoCodeRequest struct {
	ID                snowflake.ID `json:"-"`
	UsageLimit        *int64       `json:"usage_limit"`
	PerCustomerLimit  *int64       `json:"per_customer_limit"`
	MinPurchaseAmount *int64       `json:"min_purchase_amount"`
	MaxDiscountAmount *int64       `json:"max_discount_amount"`
	ValidFrom         *time.Time   `json:"valid_from"`
	ValidUntil        *time.Time   `json:"valid_until"`
	Active            *bool        `json:"active"`
}

type ValidateRequest struct {
	EventID    snowflake.ID `json:"-"`
	Code       string       `json:"code"`
	CategoryID snowflake.ID `json:"category_id"`
	CustomerID string       `json:"customer_id"`
	Subtotal   int64        `json:"subtotal"`
}

type RedeemRequest struct {
	ValidateRequest
	TransactionID string `json:"transaction_id"`
}

type Service interface {
	Create(ctx context.Context, req CreatePromoCodeRequest) (PromoCode, error)
	Get(ctx context.Context, id snowflake.ID) (PromoCode, error)
	ListByEvent(ctx context.Context, eventID snowflake.ID) ([]PromoCode, error)
	// Update rejects a usage limit below the uses already counted.
	Update(ctx context.Context, req UpdatePromoCodeRequest) (PromoCode, error)
	UsageStats(ctx context.Context, id snowflake.ID) (UsageStats, error)
	// ExpireDue persists the expired status of every active code whose window
	// closed before now and returns how many changed.
	ExpireDue(ctx context.Context, now time.Time) (int, error)

	// Validate reports the discount a code grants without consuming it.
	Validate(ctx context.Context, req ValidateRequest) (Discount, error)
	// Redeem consumes one use. Repeating a transaction id returns the first redemption.
	Redeem(ctx context.Context, req RedeemRequest) (Redemption, error)
	// Revoke undoes the redemption made by transactionID, if any.
	Revoke(ctx context.Context, eventID snowflake.ID, code, transactionID string) error
	Deactivate(ctx context.Context, id snowflake.ID) (PromoCode, error)
}
