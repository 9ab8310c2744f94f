package domain

import "errors"

var (
	ErrCodeNotFound            = errors.New("code_not_found")
	ErrCodeExpired             = errors.New("code_expired")
	ErrCodeExhausted           = errors.New("code_exhausted")
	ErrCodeNotApplicable       = errors.New("code_not_applicable")
	ErrPerCustomerLimitReached = errors.New("per_customer_limit_reached")
	ErrMinimumNotMet           = errors.New("minimum_purchase_not_met")
	ErrCustomerRequired        = errors.New("customer_required")
	ErrDuplicateCode           = errors.New("duplicate_code")
	ErrInvalidCode             = errors.New("invalid_code")
	ErrInvalidKind             = errors.New("invalid_discount_kind")
	ErrInvalidValue            = errors.New("invalid_discount_value")
	ErrInvalidLimit            = errors.New("invalid_limit")
	ErrInvalidWindow           = errors.New("invalid_validity_window")
	ErrInvalidSubtotal         = errors.New("invalid_subtotal")
	ErrInvalidTransaction      = errors.New("invalid_transaction_id")
	ErrCategoryNotInEvent      = errors.New("category_not_in_event")
)
