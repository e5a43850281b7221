package stock

import "errors"

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrAdjustmentNotFound = errors.New("stock adjustment not found")
	ErrNoProduct          = errors.New("adjustment requires a product")
	ErrZeroDelta          = errors.New("adjustment delta must not be zero")
)
