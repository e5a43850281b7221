package sale

import "errors"

var (
	ErrSaleNotFound  = errors.New("sale not found")
	ErrEmptySale     = errors.New("sale has no items")
	ErrBadQuantity   = errors.New("item quantity must be positive")
	ErrBadPrice      = errors.New("item price must not be negative")
	ErrTotalMismatch = errors.New("sale total does not match items")
)
