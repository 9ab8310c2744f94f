package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/money"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusSoldOut  Status = "sold_out"
	StatusDisabled Status = "disabled"
)

// TicketCategory tracks allocated and sold tickets for one price tier of an event.
type TicketCategory struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	EventID       snowflake.ID `gorm:"not null;index" json:"event_id"`
	Name          string       `gorm:"not null" json:"name"`
	Price         int64        `gorm:"not null" json:"price"`
	Currency      string       `gorm:"type:text;not null" json:"currency"`
	Quantity      int64        `gorm:"not null" json:"quantity"`
	Sold          int64        `gorm:"not null" json:"sold"`
	Status        Status       `gorm:"type:text;not null" json:"status"`
	ForcedSoldOut bool         `gorm:"not null" json:"forced_sold_out"`
	Version       int64        `gorm:"not null" json:"version"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (TicketCategory) TableName() string { return "ticket_categories" }

// NewTicketCategory builds an active category with nothing sold.
func NewTicketCategory(id, eventID snowflake.ID, name string, price money.Money, quantity int64, now time.Time) (TicketCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return TicketCategory{}, ErrInvalidName
	}
	if price.IsNegative() {
		return TicketCategory{}, ErrInvalidPrice
	}
	if quantity < 0 {
		return TicketCategory{}, ErrInvalidQuantity
	}
	c := TicketCategory{
		ID:        id,
		EventID:   eventID,
		Name:      name,
		Price:     price.Amount,
		Currency:  price.Currency,
		Quantity:  quantity,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	c.syncStatus()
	return c, nil
}

func (c TicketCategory) Available() int64 {
	return c.Quantity - c.Sold
}

func (c TicketCategory) UnitPrice() money.Money {
	return money.Money{Amount: c.Price, Currency: c.Currency}
}

// Sellable reports whether the category accepts sales at all.
func (c TicketCategory) Sellable() bool {
	return c.Status == StatusActive
}

// Sell takes count tickets from the category.
func (c *TicketCategory) Sell(count int64, now time.Time) error {
	if count <= 0 {
		return ErrInvalidQuantity
	}
	if !c.Sellable() || c.Sold+count > c.Quantity {
		return ErrInsufficientInventory
	}
	c.Sold += count
	c.syncStatus()
	c.UpdatedAt = now
	return nil
}

// Release returns up to count tickets to the category; sold never drops below zero.
func (c *TicketCategory) Release(count int64, now time.Time) error {
	if count <= 0 {
		return ErrInvalidQuantity
	}
	c.Sold -= count
	if c.Sold < 0 {
		c.Sold = 0
	}
	c.syncStatus()
	c.UpdatedAt = now
	return nil
}

// AdjustQuantity changes the allocation; it may never drop below what is sold.
func (c *TicketCategory) AdjustQuantity(quantity int64, now time.Time) error {
	if quantity < 0 || quantity < c.Sold {
		return ErrInvalidQuantity
	}
	c.Quantity = quantity
	c.syncStatus()
	c.UpdatedAt = now
	return nil
}

// SetForcedSoldOut toggles the organizer override without touching counters.
func (c *TicketCategory) SetForcedSoldOut(flag bool, now time.Time) error {
	if c.Status == StatusDisabled {
		return ErrCategoryDisabled
	}
	c.ForcedSoldOut = flag
	c.syncStatus()
	c.UpdatedAt = now
	return nil
}

func (c *TicketCategory) Disable(now time.Time) {
	c.Status = StatusDisabled
	c.UpdatedAt = now
}

// syncStatus derives status from counters and the forced flag. Disabled is sticky.
func (c *TicketCategory) syncStatus() {
	if c.Status == StatusDisabled {
		return
	}
	if c.ForcedSoldOut || c.Sold == c.Quantity {
		c.Status = StatusSoldOut
		return
	}
	c.Status = StatusActive
}
