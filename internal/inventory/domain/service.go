package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type CreateCategoryRequest struct {
	EventID  snowflake.ID `json:"-"`
	Name     string       `json:"name"`
	Price    int64        `json:"price"`
	Quantity int64        `json:"quantity"`
}

type Service interface {
	Create(ctx context.Context, req CreateCategoryRequest) (TicketCategory, error)
	Get(ctx context.Context, id snowflake.ID) (TicketCategory, error)
	ListByEvent(ctx context.Context, eventID snowflake.ID) ([]TicketCategory, error)
	ReserveAndSell(ctx context.Context, id snowflake.ID, count int64) (TicketCategory, error)
	Release(ctx context.Context, id snowflake.ID, count int64) (TicketCategory, error)
	AdjustQuantity(ctx context.Context, id snowflake.ID, quantity int64) (TicketCategory, error)
	ForceSoldOut(ctx context.Context, id snowflake.ID, flag bool) (TicketCategory, error)

	// ReleaseTx is Release inside the caller's transaction, without retries.
	ReleaseTx(ctx context.Context, tx *gorm.DB, id snowflake.ID, count int64) (TicketCategory, error)

	// DisableAll and CountActive run inside the caller's event transition.
	DisableAll(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) error
	CountActive(ctx context.Context, tx *gorm.DB, eventID snowflake.ID) (int64, error)
}
