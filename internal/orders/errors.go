package orders

import "errors"

var (
	ErrEmptyItems            = errors.New("order needs at least one item")
	ErrInvalidQty            = errors.New("qty must be at least 1")
	ErrProductNotFound       = errors.New("product not found")
	ErrOutOfStock            = errors.New("insufficient stock")
	ErrNotFound              = errors.New("not found")
	ErrInvalidState          = errors.New("invalid state transition")
	ErrAlreadyCanceled       = errors.New("order is already canceled")
	ErrWindowExpired         = errors.New("cancellation window expired")
	ErrMissingIdempotencyKey = errors.New("missing X-Idempotency-Key header")
	ErrDuplicateKey          = errors.New("duplicate key")
)
