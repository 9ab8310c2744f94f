package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/checkout/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/gorm"
)

const saleColumns = `id, event_id, transaction_id, category_id, quantity, subtotal, discount, total,
	currency, status, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Claim(ctx context.Context, conn *gorm.DB, record *domain.SaleRecord) (bool, error) {
	result := conn.WithContext(ctx).Exec(
		`INSERT INTO checkout_sales (`+saleColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (event_id, transaction_id) DO NOTHING`,
		record.ID,
		record.EventID,
		record.TransactionID,
		record.CategoryID,
		record.Quantity,
		record.Subtotal,
		record.Discount,
		record.Total,
		record.Currency,
		record.Status,
		record.CreatedAt,
		record.UpdatedAt,
	)
	if result.Error != nil {
		return false, db.Storage(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByTransaction(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, transactionID string) (*domain.SaleRecord, error) {
	var record domain.SaleRecord
	err := conn.WithContext(ctx).Raw(
		`SELECT `+saleColumns+` FROM checkout_sales WHERE event_id = ? AND transaction_id = ?`,
		eventID,
		transactionID,
	).Scan(&record).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) Complete(ctx context.Context, conn *gorm.DB, record *domain.SaleRecord) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE checkout_sales
		 SET discount = ?, total = ?, status = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		record.Discount,
		record.Total,
		domain.SaleStatusCompleted,
		record.UpdatedAt,
		record.ID,
		domain.SaleStatusPending,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	record.Status = domain.SaleStatusCompleted
	return nil
}

func (r *repo) Delete(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`DELETE FROM checkout_sales WHERE id = ? AND status = ?`,
		id,
		domain.SaleStatusPending,
	).Error)
}
