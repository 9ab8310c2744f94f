package domain

import (
	"errors"
	"fmt"
)

var (
	ErrIllegalTransition = errors.New("illegal_transition")
	// ErrFieldLocked is an illegal transition on venue or date while the event is public.
	ErrFieldLocked = fmt.Errorf("%w: field_locked", ErrIllegalTransition)
	// ErrPublishRequirements is returned when publishing without a venue, date or active category.
	ErrPublishRequirements = fmt.Errorf("%w: publish_requirements_unmet", ErrIllegalTransition)

	ErrInvalidOrganizer = errors.New("invalid_organizer")
	ErrInvalidName      = errors.New("invalid_name")
	ErrInvalidCurrency  = errors.New("invalid_currency")
	ErrInvalidDate      = errors.New("invalid_date")
	ErrInvalidID        = errors.New("invalid_id")
	ErrReasonRequired   = errors.New("reason_required")
	ErrNotFound         = errors.New("event_not_found")
)
