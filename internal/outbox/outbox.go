package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/boxoffice/internal/clock"
	"github.com/smallbiznis/boxoffice/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	EventPostponed        = "event.postponed"
	EventCancelled        = "event.cancelled"
	EventRefundObligation = "event.refund_obligation"
	PayoutCompleted       = "payout.completed"
	PayoutFailed          = "payout.failed"
)

const (
	AggregateEvent  = "event"
	AggregatePayout = "payout_request"
)

var (
	ErrInvalidEvent = errors.New("invalid_outbox_event")
)

// Event is a notification obligation written alongside the state change that caused it.
type Event struct {
	AggregateType string
	AggregateID   snowflake.ID
	Type          string
	Payload       map[string]any
	DedupeKey     string
}

// Record is a persisted outbox row.
type Record struct {
	ID            snowflake.ID   `gorm:"primaryKey" json:"id"`
	AggregateType string         `json:"aggregate_type"`
	AggregateID   snowflake.ID   `json:"aggregate_id"`
	Type          string         `json:"type"`
	Payload       datatypes.JSON `json:"payload"`
	DedupeKey     string         `json:"dedupe_key"`
	Attempts      int            `json:"attempts"`
	LastError     string         `json:"last_error,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	PublishedAt   *time.Time     `json:"published_at,omitempty"`
}

func (Record) TableName() string { return "outbox_events" }

type Outbox struct {
	genID *snowflake.Node
	clock clock.Clock
}

func New(genID *snowflake.Node, clk clock.Clock) *Outbox {
	return &Outbox{genID: genID, clock: clk}
}

// PublishTx stores evt using tx. A repeated dedupe key is ignored.
func (o *Outbox) PublishTx(ctx context.Context, tx *gorm.DB, evt Event) error {
	if o == nil {
		return nil
	}
	evt.Type = strings.TrimSpace(evt.Type)
	evt.DedupeKey = strings.TrimSpace(evt.DedupeKey)
	if evt.Type == "" || evt.DedupeKey == "" || evt.AggregateID == 0 {
		return ErrInvalidEvent
	}

	payload, err := json.Marshal(evt.Payload)
	if err != nil {
		return err
	}

	return db.Storage(tx.WithContext(ctx).Exec(
		`INSERT INTO outbox_events (
			id, aggregate_type, aggregate_id, type, payload, dedupe_key, attempts, last_error, created_at
		) VALUES (?, ?, ?, ?, ?, ?, 0, '', ?)
		ON CONFLICT (dedupe_key) DO NOTHING`,
		o.genID.Generate(),
		evt.AggregateType,
		evt.AggregateID,
		evt.Type,
		datatypes.JSON(payload),
		evt.DedupeKey,
		o.clock.Now(),
	).Error)
}

// Pending returns up to limit unpublished rows, oldest first.
func (o *Outbox) Pending(ctx context.Context, conn *gorm.DB, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []Record
	err := conn.WithContext(ctx).Raw(
		`SELECT id, aggregate_type, aggregate_id, type, payload, dedupe_key, attempts, last_error, created_at, published_at
		 FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT ?`,
		limit,
	).Scan(&records).Error
	if err != nil {
		return nil, db.Storage(err)
	}
	return records, nil
}

func (o *Outbox) MarkPublished(ctx context.Context, conn *gorm.DB, id snowflake.ID) error {
	return db.Storage(conn.WithContext(ctx).Exec(
		`UPDATE outbox_events SET published_at = ?, attempts = attempts + 1, last_error = '' WHERE id = ?`,
		o.clock.Now(),
		id,
	).Error)
}

func (o *Outbox) MarkFailed(ctx context.Context, conn *gorm.DB, id snowflake.ID, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return db.Storage(conn.WithContext(ctx).Exec(
		`UPDATE outbox_events SET attempts = attempts + 1, last_error = ? WHERE id = ?`,
		msg,
		id,
	).Error)
}
