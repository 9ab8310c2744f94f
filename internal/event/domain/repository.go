package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, event *Event) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Event, error)
	// Update persists event if its version is unchanged and bumps event.Version.
	Update(ctx context.Context, db *gorm.DB, event *Event) error
	ListDueScheduled(ctx context.Context, db *gorm.DB, now time.Time) ([]snowflake.ID, error)
}
