package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusPublished Status = "published"
	StatusPostponed Status = "postponed"
	StatusCancelled Status = "cancelled"
)

const (
	FieldVenue    = "venue"
	FieldStartsAt = "starts_at"
)

var transitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusPublished, StatusCancelled},
	StatusScheduled: {StatusPublished, StatusCancelled},
	StatusPublished: {StatusPostponed, StatusCancelled},
	StatusPostponed: {StatusPublished, StatusCancelled},
}

// Event is an organizer's event and the source of truth for its publication status.
type Event struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	OrganizerID   snowflake.ID `gorm:"not null;index" json:"organizer_id"`
	Name          string       `gorm:"not null" json:"name"`
	Slug          string       `gorm:"not null" json:"slug"`
	Status        Status       `gorm:"type:text;not null" json:"status"`
	Venue         string       `gorm:"not null" json:"venue,omitempty"`
	StartsAt      *time.Time   `json:"starts_at,omitempty"`
	PublishAt     *time.Time   `json:"publish_at,omitempty"`
	PostponedFrom *time.Time   `json:"postponed_from,omitempty"`
	CancelReason  string       `gorm:"not null" json:"cancel_reason,omitempty"`
	Currency      string       `gorm:"type:text;not null" json:"currency"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
	CancelledAt   *time.Time   `json:"cancelled_at,omitempty"`
	Version       int64        `gorm:"not null" json:"version"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Event) TableName() string { return "events" }

// IsLocked reports whether venue and date are frozen outside dedicated transitions.
func (e Event) IsLocked() bool {
	switch e.Status {
	case StatusPublished, StatusPostponed, StatusCancelled:
		return true
	}
	return false
}

// LockedFields lists the fields that may not be edited directly.
func (e Event) LockedFields() []string {
	if !e.IsLocked() {
		return nil
	}
	return []string{FieldVenue, FieldStartsAt}
}

// HasStarted reports whether the event date is at or before now.
func (e Event) HasStarted(now time.Time) bool {
	return e.StartsAt != nil && !now.Before(*e.StartsAt)
}

// IsTerminal reports whether the event accepts no more edits or transitions.
func (e Event) IsTerminal(now time.Time) bool {
	return e.Status == StatusCancelled || e.HasStarted(now)
}

// CanTransition reports whether to is reachable from the current status at now.
func (e Event) CanTransition(to Status, now time.Time) bool {
	if e.IsTerminal(now) {
		return false
	}
	for _, next := range transitions[e.Status] {
		if next == to {
			return true
		}
	}
	return false
}

func (e *Event) touch(now time.Time) {
	e.UpdatedAt = now
}

// UpdateDetails applies direct edits. Venue and date are rejected while locked.
func (e *Event) UpdateDetails(name *string, venue *string, startsAt *time.Time, now time.Time) error {
	if e.IsTerminal(now) {
		return ErrIllegalTransition
	}
	if e.IsLocked() {
		if venue != nil && strings.TrimSpace(*venue) != e.Venue {
			return ErrFieldLocked
		}
		if startsAt != nil && (e.StartsAt == nil || !startsAt.Equal(*e.StartsAt)) {
			return ErrFieldLocked
		}
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return ErrInvalidName
		}
		e.Name = trimmed
	}
	if venue != nil {
		e.Venue = strings.TrimSpace(*venue)
	}
	if startsAt != nil {
		if !startsAt.After(now) {
			return ErrInvalidDate
		}
		at := startsAt.UTC()
		e.StartsAt = &at
	}
	e.touch(now)
	return nil
}

// Schedule moves a draft to scheduled with a future publish time.
func (e *Event) Schedule(publishAt time.Time, now time.Time) error {
	if !e.CanTransition(StatusScheduled, now) {
		return ErrIllegalTransition
	}
	if !publishAt.After(now) {
		return ErrInvalidDate
	}
	at := publishAt.UTC()
	e.PublishAt = &at
	e.Status = StatusScheduled
	e.touch(now)
	return nil
}

// Publish makes the event public. activeCategories is the number of sellable categories.
func (e *Event) Publish(activeCategories int64, now time.Time) error {
	if !e.CanTransition(StatusPublished, now) {
		return ErrIllegalTransition
	}
	if activeCategories < 1 || e.Venue == "" || e.StartsAt == nil {
		return ErrPublishRequirements
	}
	e.Status = StatusPublished
	if e.PublishedAt == nil {
		at := now
		e.PublishedAt = &at
	}
	e.touch(now)
	return nil
}

// Postpone moves a published event to a new future date and records the prior one.
func (e *Event) Postpone(newDate time.Time, now time.Time) error {
	if !e.CanTransition(StatusPostponed, now) {
		return ErrIllegalTransition
	}
	if !newDate.After(now) {
		return ErrInvalidDate
	}
	if e.StartsAt != nil && newDate.Equal(*e.StartsAt) {
		return ErrInvalidDate
	}
	prior := e.StartsAt
	at := newDate.UTC()
	e.PostponedFrom = prior
	e.StartsAt = &at
	e.Status = StatusPostponed
	e.touch(now)
	return nil
}

// Cancel terminates the event with the given reason.
func (e *Event) Cancel(reason string, now time.Time) error {
	reason = strings.TrimSpace(reason)
	if !e.CanTransition(StatusCancelled, now) {
		return ErrIllegalTransition
	}
	if reason == "" {
		return ErrReasonRequired
	}
	e.Status = StatusCancelled
	e.CancelReason = reason
	at := now
	e.CancelledAt = &at
	e.touch(now)
	return nil
}
