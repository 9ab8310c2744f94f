package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/pkg/db/pagination"
	"gorm.io/gorm"
)

type ListTransactionsResponse struct {
	pagination.PageInfo
	Transactions []Transaction `json:"transactions"`
}

type Service interface {
	// Open creates the ledger for eventID inside tx. An existing ledger is returned unchanged.
	Open(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, currency string, commissionBps int64) (Ledger, error)
	Get(ctx context.Context, eventID snowflake.ID) (Ledger, error)
	Transactions(ctx context.Context, eventID snowflake.ID, page pagination.Pagination) (ListTransactionsResponse, error)
	FindTransaction(ctx context.Context, eventID snowflake.ID, kind TransactionKind, reference string) (*Transaction, error)

	RecordSale(ctx context.Context, eventID snowflake.ID, amount int64, reference string) (Ledger, error)
	RecordRefund(ctx context.Context, eventID snowflake.ID, amount int64, reference string) (Ledger, error)
	// BookRefund records a refund inside the caller's transaction. applied is
	// false when reference was already booked for the same amount.
	BookRefund(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (ledger Ledger, applied bool, err error)

	// Payout movements run inside the payout workflow's transaction.
	ReservePayout(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (Ledger, error)
	ReleaseReservation(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (Ledger, error)
	CommitPayout(ctx context.Context, tx *gorm.DB, eventID snowflake.ID, amount int64, reference string) (Ledger, error)

	Verify(ctx context.Context, eventID snowflake.ID) (Ledger, error)
	Retire(ctx context.Context, eventID snowflake.ID) (Ledger, error)
}
