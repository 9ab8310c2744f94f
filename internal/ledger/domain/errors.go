package domain

import "errors"

var (
	ErrNegativeAmount       = errors.New("negative_amount")
	ErrRefundExceedsGross   = errors.New("refund_exceeds_gross")
	ErrRefundExceedsBalance = errors.New("refund_exceeds_balance")
	ErrPayoutExceedsBalance = errors.New("payout_exceeds_balance")
	ErrReservationMismatch  = errors.New("reservation_mismatch")
	ErrLedgerRetired        = errors.New("ledger_retired")
	ErrLedgerNotFound       = errors.New("ledger_not_found")
	ErrNotRetirable         = errors.New("ledger_not_retirable")
	ErrReplayMismatch       = errors.New("replay_mismatch")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrReferenceConflict    = errors.New("reference_conflict")
	ErrUnknownKind          = errors.New("unknown_transaction_kind")
)
