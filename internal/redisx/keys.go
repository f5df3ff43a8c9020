package redisx

import "time"

const (
	// Confirm replay fast path: idem:order:confirm:{key} -> recorded body.
	// Postgres stays the source of truth; this only short-circuits reads.
	KeyConfirmReplay = "idem:order:confirm:%s"

	// Cached GET /orders/{id} body: order:{order_id}. Dropped on any
	// status transition.
	KeyOrder = "order:%d"
)

var (
	TTLConfirmReplay = 24 * time.Hour
	TTLOrderCache    = 5 * time.Minute
)
