package events

// RoutingKey is a topic-style, dot-delimited bus label.
type RoutingKey string

// Outbound routing keys published by this service
const (
	RoutingKeySaleHeaderCreated RoutingKey = "sale.header.created"
	RoutingKeySaleUpdated       RoutingKey = "sale.updated"
	RoutingKeySaleCancelled     RoutingKey = "sale.cancelled"
	RoutingKeySaleCompleted     RoutingKey = "sale.completed"
	RoutingKeySaleFailed        RoutingKey = "sale.failed"
)

// Inbound routing keys this service's saga role subscribes to
const (
	RoutingKeySaleDetailsPersisted   RoutingKey = "sale.details.persisted"
	RoutingKeyStockReserved          RoutingKey = "stock.reserved"
	RoutingKeyStockReservationFailed RoutingKey = "stock.reservation_failed"
)

// InboundRoutingKeys is the fixed binding set of the sale queue.
var InboundRoutingKeys = []RoutingKey{
	RoutingKeySaleDetailsPersisted,
	RoutingKeyStockReserved,
	RoutingKeyStockReservationFailed,
}

// IsInbound reports whether rk belongs to the closed inbound set.
func (rk RoutingKey) IsInbound() bool {
	for _, k := range InboundRoutingKeys {
		if k == rk {
			return true
		}
	}
	return false
}

func (rk RoutingKey) String() string {
	return string(rk)
}

// AggregateTypeSale tags the aggregate outbox rows belong to.
const AggregateTypeSale = "sale"

// CancelReasonDeleted is the compensation reason sent on soft delete.
const CancelReasonDeleted = "Deleted by user"

// BindingKeys returns InboundRoutingKeys as plain strings for queue bindings.
func BindingKeys() []string {
	keys := make([]string, 0, len(InboundRoutingKeys))
	for _, k := range InboundRoutingKeys {
		keys = append(keys, k.String())
	}
	return keys
}
