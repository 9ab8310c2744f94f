package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/event/domain"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/gorm"
)

const eventColumns = `id, organizer_id, name, slug, status, venue, starts_at, publish_at, postponed_from,
	cancel_reason, currency, published_at, cancelled_at, version, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, event *domain.Event) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`INSERT INTO events (`+eventColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		event.ID,
		event.OrganizerID,
		event.Name,
		event.Slug,
		event.Status,
		event.Venue,
		event.StartsAt,
		event.PublishAt,
		event.PostponedFrom,
		event.CancelReason,
		event.Currency,
		event.PublishedAt,
		event.CancelledAt,
		event.Version,
		event.CreatedAt,
		event.UpdatedAt,
	).Error)
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Event, error) {
	var event domain.Event
	err := conn.WithContext(ctx).Raw(
		`SELECT `+eventColumns+` FROM events WHERE id = ?`,
		id,
	).Scan(&event).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) Update(ctx context.Context, conn *gorm.DB, event *domain.Event) error {
	result := conn.WithContext(ctx).Exec(
		`UPDATE events SET
			name = ?, status = ?, venue = ?, starts_at = ?, publish_at = ?, postponed_from = ?,
			cancel_reason = ?, published_at = ?, cancelled_at = ?, version = version + 1, updated_at = ?
		 WHERE id = ? AND version = ?`,
		event.Name,
		event.Status,
		event.Venue,
		event.StartsAt,
		event.PublishAt,
		event.PostponedFrom,
		event.CancelReason,
		event.PublishedAt,
		event.CancelledAt,
		event.UpdatedAt,
		event.ID,
		event.Version,
	)
	if result.Error != nil {
		return db.Storage(result.Error)
	}
	if err := db.CheckAffected(result.RowsAffected); err != nil {
		return err
	}
	event.Version++
	return nil
}

func (r *repo) ListDueScheduled(ctx context.Context, conn *gorm.DB, now time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := conn.WithContext(ctx).Raw(
		`SELECT id FROM events WHERE status = ? AND publish_at <= ? ORDER BY publish_at, id`,
		domain.StatusScheduled,
		now,
	).Scan(&ids).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return ids, nil
}
