package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertBankAccount(ctx context.Context, db *gorm.DB, account *BankAccount) error
	FindBankAccount(ctx context.Context, db *gorm.DB, id snowflake.ID) (*BankAccount, error)
	ListBankAccounts(ctx context.Context, db *gorm.DB, organizerID snowflake.ID) ([]BankAccount, error)

	Insert(ctx context.Context, db *gorm.DB, request *PayoutRequest) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*PayoutRequest, error)
	ListByEvent(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]PayoutRequest, error)
	ListByEventStatus(ctx context.Context, db *gorm.DB, eventID snowflake.ID, statuses ...Status) ([]PayoutRequest, error)
	SumByStatus(ctx context.Context, db *gorm.DB, eventID snowflake.ID) ([]StatusSum, error)
	// SumCompletedSince totals completed requests resolved at or after since.
	SumCompletedSince(ctx context.Context, db *gorm.DB, eventID snowflake.ID, since time.Time) (StatusTotal, error)
	Update(ctx context.Context, db *gorm.DB, request *PayoutRequest) error
}
