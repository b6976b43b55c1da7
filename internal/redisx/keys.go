package redisx

import "time"

const (
	// Cache of order status: order_status:{order_id} -> {"status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Dedup of event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
