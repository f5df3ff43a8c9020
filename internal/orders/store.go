package orders

import "context"

// Store is the persistent side of the order system. Reads outside a
// transaction see committed state only; everything that mutates more than
// one row goes through WithinTx.
type Store interface {
	// WithinTx runs fn inside a single transaction and commits only when fn
	// returns nil. Any error rolls the whole transaction back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id int64) (Order, error)
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	ListProducts(ctx context.Context) ([]Product, error)

	GetIdempotencyRecord(ctx context.Context, key string) (IdempotencyRecord, error)
}

// Tx is the row-locking view used inside WithinTx. GetProductForUpdate and
// GetOrderForUpdate hold an exclusive lock on the row until commit/rollback.
type Tx interface {
	GetProductForUpdate(ctx context.Context, productID int64) (Product, error)
	AdjustStock(ctx context.Context, productID int64, delta int) error
	InsertOrder(ctx context.Context, o *Order) error
	InsertItems(ctx context.Context, items []OrderItem) error
	GetOrderForUpdate(ctx context.Context, id int64) (Order, error)
	SetStatus(ctx context.Context, orderID int64, s Status) error
	ListItems(ctx context.Context, orderID int64) ([]OrderItem, error)
	// InsertIdempotencyRecord returns ErrDuplicateKey when the key is
	// already recorded; the surrounding transaction rolls back and the
	// caller re-reads the stored record.
	InsertIdempotencyRecord(ctx context.Context, rec IdempotencyRecord) error
}
