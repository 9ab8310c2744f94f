package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/money"
)

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFixed      Kind = "fixed"
)

type Status string

// Depleted and expired follow from the usage count and validity window; inactive
// is only ever set by the organizer.
const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusDepleted Status = "depleted"
	StatusExpired  Status = "expired"
)

const maxCodeLength = 32

// PromoCode is a discount code scoped to one event. Value is basis points for
// percentage codes and minor units for fixed codes.
type PromoCode struct {
	ID                snowflake.ID   `gorm:"primaryKey" json:"id"`
	EventID           snowflake.ID   `gorm:"not null;index" json:"event_id"`
	Code              string         `gorm:"not null" json:"code"`
	Kind              Kind           `gorm:"type:text;not null" json:"kind"`
	Value             int64          `gorm:"not null" json:"value"`
	UsageLimit        *int64         `json:"usage_limit,omitempty"`
	UsesCount         int64          `gorm:"not null" json:"uses_count"`
	PerCustomerLimit  *int64         `json:"per_customer_limit,omitempty"`
	MinPurchaseAmount *int64         `json:"min_purchase_amount,omitempty"`
	MaxDiscountAmount *int64         `json:"max_discount_amount,omitempty"`
	ValidFrom         *time.Time     `json:"valid_from,omitempty"`
	ValidUntil        *time.Time     `json:"valid_until,omitempty"`
	Status            Status         `gorm:"type:text;not null" json:"status"`
	CategoryIDs       []snowflake.ID `gorm:"-" json:"category_ids"`
	Version           int64          `gorm:"not null" json:"version"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null" json:"updated_at"`
}

func (PromoCode) TableName() string { return "promo_codes" }

// Redemption records one use of a code by a sale.
type Redemption struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	PromoCodeID    snowflake.ID `gorm:"not null" json:"promo_code_id"`
	CustomerID     string       `json:"customer_id,omitempty"`
	TransactionID  string       `gorm:"not null" json:"transaction_id"`
	DiscountAmount int64        `gorm:"not null" json:"discount_amount"`
	Subtotal       int64        `gorm:"not null" json:"subtotal"`
	RedeemedAt     time.Time    `gorm:"not null" json:"redeemed_at"`
}

func (Redemption) TableName() string { return "promo_code_redemptions" }

// Discount is the reduction a validated code grants on a subtotal.
type Discount struct {
	PromoCodeID snowflake.ID `json:"promo_code_id"`
	Code        string       `json:"code"`
	Kind        Kind         `json:"kind"`
	Amount      int64        `json:"amount"`
}

// NormalizeCode upper-cases and trims a code; codes compare case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateDefinition checks the static configuration of a code.
func (p PromoCode) ValidateDefinition() error {
	if p.Code == "" || len(p.Code) > maxCodeLength {
		return ErrInvalidCode
	}
	for _, r := range p.Code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '-' && r != '_' {
			return ErrInvalidCode
		}
	}

	switch p.Kind {
	case KindPercentage:
		if p.Value <= 0 || p.Value > money.BasisPointsScale {
			return ErrInvalidValue
		}
	case KindFixed:
		if p.Value <= 0 {
			return ErrInvalidValue
		}
	default:
		return ErrInvalidKind
	}

	for _, limit := range []*int64{p.UsageLimit, p.PerCustomerLimit} {
		if limit != nil && *limit <= 0 {
			return ErrInvalidLimit
		}
	}
	for _, amount := range []*int64{p.MinPurchaseAmount, p.MaxDiscountAmount} {
		if amount != nil && *amount < 0 {
			return ErrInvalidValue
		}
	}
	if p.ValidFrom != nil && p.ValidUntil != nil && !p.ValidUntil.After(*p.ValidFrom) {
		return ErrInvalidWindow
	}
	return nil
}

// Exhausted reports whether the usage limit is used up.
func (p PromoCode) Exhausted() bool {
	return p.UsageLimit != nil && p.UsesCount >= *p.UsageLimit
}

// SyncStatus derives depleted or expired from the counters and the window at now.
// An inactive code stays inactive. It reports whether the status changed.
func (p *PromoCode) SyncStatus(now time.Time) bool {
	if p.Status == StatusInactive {
		return false
	}
	next := StatusActive
	switch {
	case p.ValidUntil != nil && now.After(*p.ValidUntil):
		next = StatusExpired
	case p.Exhausted():
		next = StatusDepleted
	}
	if next == p.Status {
		return false
	}
	p.Status = next
	return true
}

// ApplyUpdate patches the mutable settings. Nil fields keep their value.
func (p *PromoCode) ApplyUpdate(req UpdatePromoCodeRequest, now time.Time) error {
	next := *p
	if req.UsageLimit != nil {
		next.UsageLimit = req.UsageLimit
	}
	if req.PerCustomerLimit != nil {
		next.PerCustomerLimit = req.PerCustomerLimit
	}
	if req.MinPurchaseAmount != nil {
		next.MinPurchaseAmount = req.MinPurchaseAmount
	}
	if req.MaxDiscountAmount != nil {
		next.MaxDiscountAmount = req.MaxDiscountAmount
	}
	if req.ValidFrom != nil {
		next.ValidFrom = req.ValidFrom
	}
	if req.ValidUntil != nil {
		next.ValidUntil = req.ValidUntil
	}
	if req.Active != nil {
		if *req.Active {
			next.Status = StatusActive
		} else {
			next.Status = StatusInactive
		}
	}
	if err := next.ValidateDefinition(); err != nil {
		return err
	}
	if next.UsageLimit != nil && *next.UsageLimit < next.UsesCount {
		return ErrInvalidLimit
	}
	next.SyncStatus(now)
	next.UpdatedAt = now
	*p = next
	return nil
}

// UsageStats summarizes how a code has been used.
type UsageStats struct {
	PromoCodeID     snowflake.ID `json:"promo_code_id"`
	Code            string       `json:"code"`
	Status          Status       `json:"status"`
	UsesCount       int64        `json:"uses_count"`
	UsageLimit      *int64       `json:"usage_limit,omitempty"`
	Remaining       *int64       `json:"remaining,omitempty"`
	TotalDiscount   int64        `json:"total_discount"`
	TotalSubtotal   int64        `json:"total_subtotal"`
	UniqueCustomers int64        `json:"unique_customers"`
	AverageDiscount int64        `json:"average_discount"`
}

// RedemptionTotals aggregates the redemption rows of one code.
type RedemptionTotals struct {
	Redemptions     int64
	TotalDiscount   int64
	TotalSubtotal   int64
	UniqueCustomers int64
}

func NewUsageStats(p PromoCode, totals RedemptionTotals) UsageStats {
	stats := UsageStats{
		PromoCodeID:     p.ID,
		Code:            p.Code,
		Status:          p.Status,
		UsesCount:       p.UsesCount,
		UsageLimit:      p.UsageLimit,
		TotalDiscount:   totals.TotalDiscount,
		TotalSubtotal:   totals.TotalSubtotal,
		UniqueCustomers: totals.UniqueCustomers,
	}
	if p.UsageLimit != nil {
		remaining := *p.UsageLimit - p.UsesCount
		if remaining < 0 {
			remaining = 0
		}
		stats.Remaining = &remaining
	}
	if totals.Redemptions > 0 {
		stats.AverageDiscount = money.RoundHalfUp(totals.TotalDiscount, totals.Redemptions)
	}
	return stats
}

func (p PromoCode) appliesTo(categoryID snowflake.ID) bool {
	if len(p.CategoryIDs) == 0 {
		return true
	}
	for _, id := range p.CategoryIDs {
		if id == categoryID {
			return true
		}
	}
	return false
}

// Check runs the usage rules in order and returns the discount on subtotal.
// customerUses is how often customerID already redeemed the code.
func (p PromoCode) Check(categoryID snowflake.ID, customerID string, customerUses, subtotal int64, now time.Time) (Discount, error) {
	if p.Status == StatusInactive {
		return Discount{}, ErrCodeNotFound
	}
	if (p.ValidFrom != nil && now.Before(*p.ValidFrom)) || (p.ValidUntil != nil && now.After(*p.ValidUntil)) {
		return Discount{}, ErrCodeExpired
	}
	if p.UsageLimit != nil && p.UsesCount >= *p.UsageLimit {
		return Discount{}, ErrCodeExhausted
	}
	if !p.appliesTo(categoryID) {
		return Discount{}, ErrCodeNotApplicable
	}
	if p.PerCustomerLimit != nil {
		if strings.TrimSpace(customerID) == "" {
			return Discount{}, ErrCustomerRequired
		}
		if customerUses >= *p.PerCustomerLimit {
			return Discount{}, ErrPerCustomerLimitReached
		}
	}
	if subtotal < 0 {
		return Discount{}, ErrInvalidSubtotal
	}
	if p.MinPurchaseAmount != nil && subtotal < *p.MinPurchaseAmount {
		return Discount{}, ErrMinimumNotMet
	}

	return Discount{
		PromoCodeID: p.ID,
		Code:        p.Code,
		Kind:        p.Kind,
		Amount:      p.discountOn(subtotal),
	}, nil
}

// discountOn never exceeds the subtotal. Percentage discounts round half up and
// honor the optional cap.
func (p PromoCode) discountOn(subtotal int64) int64 {
	var amount int64
	switch p.Kind {
	case KindPercentage:
		amount = money.RoundHalfUp(subtotal*p.Value, money.BasisPointsScale)
		if p.MaxDiscountAmount != nil && amount > *p.MaxDiscountAmount {
			amount = *p.MaxDiscountAmount
		}
	case KindFixed:
		amount = p.Value
	}
	if amount > subtotal {
		amount = subtotal
	}
	return amount
}
