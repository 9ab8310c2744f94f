package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, ledger *Ledger) error
	FindByEventID(ctx context.Context, db *gorm.DB, eventID snowflake.ID) (*Ledger, error)
	// Update persists ledger if its version is unchanged and bumps ledger.Version.
	Update(ctx context.Context, db *gorm.DB, ledger *Ledger) error

	InsertTransaction(ctx context.Context, db *gorm.DB, tx *Transaction) (bool, error)
	FindTransaction(ctx context.Context, db *gorm.DB, eventID snowflake.ID, kind TransactionKind, reference string) (*Transaction, error)
	ListTransactions(ctx context.Context, db *gorm.DB, eventID snowflake.ID, page *pagination.Pagination) ([]Transaction, error)
}
