package domain

type CartItem struct {
	ID        int64    `json:"id"`
	CartID    int64    `json:"cartId"`
	ProductID int64    `json:"productId"`
	Quantity  int      `json:"quantity"`
	Product   *Product `json:"product,omitempty"`
}

type Cart struct {
	ID        int64      `json:"id,omitempty"`
	UserID    int64      `json:"userId,omitempty"`
	CartItems []CartItem `json:"cartItems"`
}
