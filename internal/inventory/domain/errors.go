package domain

import "errors"

var (
	ErrInsufficientInventory = errors.New("insufficient_inventory")
	ErrInvalidQuantity       = errors.New("invalid_quantity")
	ErrInvalidName           = errors.New("invalid_name")
	ErrInvalidPrice          = errors.New("invalid_price")
	ErrCategoryDisabled      = errors.New("category_disabled")
	ErrNotFound              = errors.New("category_not_found")
)
