package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/inventory/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/gorm"
)

const categoryColumns = `id, event_id, name, price, currency, quantity, sold, status, forced_sold_out,
	version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, category *domain.TicketCategory) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`INSERT INTO ticket_categories (`+categoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		category.ID,
		category.EventID,
		category.Name,
		category.Price,
		category.Currency,
		category.Quantity,
		category.Sold,
		category.Status,
		category.ForcedSoldOut,
		category.Version,
		category.CreatedAt,
		category.UpdatedAt,
	).Error)
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.TicketCategory, error) {
	var category domain.TicketCategory
	err := conn.WithContext(ctx).Raw(
		`SELECT `+categoryColumns+` FROM ticket_categories WHERE id = ?`,
		id,
	).Scan(&category).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if category.ID == 0 {
		return nil, nil
	}
	return &category, nil
}

func (r *repo) ListByEvent(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) ([]domain.TicketCategory, error) {
	var categories []domain.TicketCategory
	err := conn.WithContext(ctx).Raw(
		`SELECT `+categoryColumns+` FROM ticket_categories WHERE event_id = ? ORDER BY id`,
		eventID,
	).Scan(&categories).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return categories, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, category *domain.TicketCategory) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE ticket_categories SET
			quantity = ?, sold = ?, status = ?, forced_sold_out = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		category.Quantity,
		category.Sold,
		category.Status,
		category.ForcedSoldOut,
		category.UpdatedAt,
		category.ID,
		category.Version,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	category.Version++
	return nil
}

func (r *repo) DisableByEvent(ctx context.Context, conn *gorm.DB, eventID snowflake.ID, now time.Time) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`UPDATE ticket_categories SET status = ?, version = version + 1, updated_at = ?
		 WHERE event_id = ? AND status <> ?`,
		domain.StatusDisabled,
		now,
		eventID,
		domain.StatusDisabled,
	).Error)
}

func (r *repo) CountActive(ctx context.Context, conn *gorm.DB, eventID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(*) FROM ticket_categories WHERE event_id = ? AND status = ?`,
		eventID,
		domain.StatusActive,
	).Scan(&count).Error
	if err != nil {
		return 0, db.Storage(err)
	}
	return count, nil
}
