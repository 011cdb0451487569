package messaging

const (
	// TopicInventoryUpdated carries domain.InventoryUpdateEvent keyed by
	// product id.
	TopicInventoryUpdated = "inventory.updated"
	// TopicOrderPlaced carries domain.OrderPlacedEvent keyed by order id.
	TopicOrderPlaced = "order.placed"
)
