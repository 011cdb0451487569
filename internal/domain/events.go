package domain

import "time"

const InventoryUpdateType = "INVENTORY_UPDATE"

// InventoryUpdateEvent is emitted once per product whose stock changed in a
// committed checkout. It is never persisted.
type InventoryUpdateEvent struct {
	Type             string `json:"type"`
	ProductID        int64  `json:"productId"`
	NewStockQuantity int    `json:"newStockQuantity"`
}

func NewInventoryUpdate(productID int64, stock int) InventoryUpdateEvent {
	return InventoryUpdateEvent{
		Type:             InventoryUpdateType,
		ProductID:        productID,
		NewStockQuantity: stock,
	}
}

type OrderPlacedEvent struct {
	OrderID     int64       `json:"orderId"`
	UserID      int64       `json:"userId"`
	Email       string      `json:"email"`
	TotalAmount int64       `json:"totalAmount"`
	Items       []OrderItem `json:"items"`
	Timestamp   time.Time   `json:"timestamp"`
}
