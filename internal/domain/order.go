package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPaid      OrderStatus = "Paid"
	OrderStatusShipped   OrderStatus = "Shipped"
	OrderStatusDelivered OrderStatus = "Delivered"
	OrderStatusCancelled OrderStatus = "Cancelled"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "PENDING"
	PaymentStatusSuccess PaymentStatus = "SUCCESS"
	PaymentStatusFailed  PaymentStatus = "FAILED"
)

const PaymentProviderMock = "mock_razorpay"

// OrderItem is the purchase-time snapshot of a cart line. Price is copied
// from the product when the order is placed and never changes afterwards.
type OrderItem struct {
	ID        int64 `json:"id"`
	OrderID   int64 `json:"orderId"`
	ProductID int64 `json:"productId"`
	Quantity  int   `json:"quantity"`
	Price     int64 `json:"price"`
}

type Payment struct {
	ID            int64         `json:"id"`
	OrderID       int64         `json:"orderId"`
	Amount        int64         `json:"amount"`
	Provider      string        `json:"provider"`
	Status        PaymentStatus `json:"status"`
	TransactionID string        `json:"transactionId"`
	CreatedAt     time.Time     `json:"createdAt"`
}

type Order struct {
	ID             int64       `json:"id"`
	UserID         int64       `json:"userId"`
	TotalAmount    int64       `json:"totalAmount"`
	Status         OrderStatus `json:"status"`
	IdempotencyKey string      `json:"-"`
	CreatedAt      time.Time   `json:"createdAt"`
	Items          []OrderItem `json:"items,omitempty"`
	Payment        *Payment    `json:"payment,omitempty"`
}
