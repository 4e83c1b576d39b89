package redis

// Key prefixes for primary entity storage.
const (
	prefixSubscription = "courier:sub:"
	prefixDelivery     = "courier:del:"
)

// Key prefixes for sorted set indexes.
const (
	zSubscriptionAll = "courier:z:sub:all"
	zDeliverySub     = "courier:z:del:sub:" // + subscription ID
	zDeliveryDue     = "courier:z:del:due"
)

// Key prefixes for set indexes.
const (
	sSubscriptionEvent = "courier:s:sub:evt:"    // + event type
	sDeliveryStatus    = "courier:s:del:status:" // + status
)

// hDeliveryFence maps a delivery ID to "<status>:<attempt_count>", the
// version UpdateDelivery compares against before writing.
const hDeliveryFence = "courier:h:del:fence"

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}
