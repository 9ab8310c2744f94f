package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, category *TicketCategory) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*TicketCategory, error)
	ListByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]TicketCategory, error)
	// Update persists category if its version is unchanged and bumps category.Version.
	Update(ctx context.Context, db *gorm.DB, category *TicketCategory) error
	DisableByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID, now time.Time) error
	CountActive(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (int64, error)
}
