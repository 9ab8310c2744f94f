package domain

import (
	"errors"

	ledgerdomain "github.com/smallbiznis/boxoffice/internal/ledger/domain"
)

var (
	ErrPayoutBelowMinimum = errors.New("payout_below_minimum")
	ErrAccountNotOwned    = errors.New("bank_account_not_owned")
	ErrInvalidAccount     = errors.New("invalid_bank_account")
	ErrInvalidOrganizer   = errors.New("invalid_organizer")
	ErrInvalidOutcome     = errors.New("invalid_outcome")
	ErrOutcomeRequired    = errors.New("outcome_required")
	ErrNotFound           = errors.New("payout_not_found")
	ErrAccountNotFound    = errors.New("bank_account_not_found")

	// ErrPayoutExceedsBalance is the ledger's rejection of an over-sized reservation.
	ErrPayoutExceedsBalance = ledgerdomain.ErrPayoutExceedsBalance
)
