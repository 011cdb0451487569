package domain

type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product prices are integer amounts in the minor currency unit.
type Product struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	Price         int64     `json:"price"`
	Images        []string  `json:"images"`
	StockQuantity int       `json:"stockQuantity"`
	CategoryID    int64     `json:"categoryId"`
	Category      *Category `json:"category,omitempty"`
}
