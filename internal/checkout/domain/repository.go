package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Claim inserts record unless its transaction id is already taken for the event.
	Claim(ctx context.Context, db *gorm.DB, record *SaleRecord) (bool, error)
	FindByTransaction(ctx context.Context, db *gorm.DB, eventID snowflake.ID, transactionID string) (*SaleRecord, error)
	Complete(ctx context.Context, db *gorm.DB, record *SaleRecord) error
	Delete(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
