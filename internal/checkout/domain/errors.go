package domain

import "errors"

var (
	ErrEventNotOnSale       = errors.New("event_not_on_sale")
	ErrDuplicateTransaction = errors.New("duplicate_transaction")
	ErrInvalidTransaction   = errors.New("invalid_transaction_id")
	ErrCategoryNotInEvent   = errors.New("category_not_in_event")
	ErrChargeFailed         = errors.New("charge_failed")
	ErrInvalidRefund        = errors.New("invalid_refund")
)
