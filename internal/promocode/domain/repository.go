package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert stores code and its category scope; a taken code yields ErrDuplicateCode.
	Insert(ctx context.Context, db *gorm.DB, code *PromoCode) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PromoCode, error)
	FindByCode(ctx context.Context, db *gorm.DB, eventID snowflake.ID, code string) (*PromoCode, error)
	ListByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]PromoCode, error)
	Update(ctx context.Context, db *gorm.DB, code *PromoCode) error
	ListExpiring(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]PromoCode, error)

	CountCustomerRedemptions(ctx context.Context, db *gorm.DB, codeID snowflake.ID, customerID string) (int64, error)
	FindRedemption(ctx context.Context, db *gorm.DB, codeID snowflake.ID, transactionID string) (*Redemption, error)
	InsertRedemption(ctx context.Context, db *gorm.DB, redemption *Redemption) (bool, error)
	DeleteRedemption(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	RedemptionTotals(ctx context.Context, db *gorm.DB, codeID snowflake.ID) (RedemptionTotals, error)
}
