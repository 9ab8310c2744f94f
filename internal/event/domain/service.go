package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
)

type CreateEventRequest struct {
	Name     string     `json:"name"`
	Currency string     `json:"currency"`
	Venue    string     `json:"venue"`
	StartsAt *time.Time `json:"starts_at"`
}

type UpdateEventRequest struct {
	ID       snowflake.ID `json:"-"`
	Name     *string      `json:"name"`
	Venue    *string      `json:"venue"`
	StartsAt *time.Time   `json:"starts_at"`
}

type Service interface {
	Create(ctx context.Context, req CreateEventRequest) (Event, error)
	Get(ctx context.Context, id snowflake.ID) (Event, error)
	UpdateDetails(ctx context.Context, req UpdateEventRequest) (Event, error)
	Schedule(ctx context.Context, id snowflake.ID, publishAt time.Time) (Event, error)
	Publish(ctx context.Context, id snowflake.ID) (Event, error)
	PublishDue(ctx context.Context, now time.Time) ([]snowflake.ID, error)
	Postpone(ctx context.Context, id snowflake.ID, newDate time.Time) (Event, error)
	Cancel(ctx context.Context, id snowflake.ID, reason string) (Event, error)
}
