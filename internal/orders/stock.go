package orders

import "github.com/joao-fontenele/monocart/internal/domain"

// StockRequirement is one cart line checked against current stock.
type StockRequirement struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

// CheckStock returns an *domain.InsufficientStockError for the first
// requirement that asks for more than is available, in slice order.
func CheckStock(reqs []StockRequirement) error {
	for _, r := range reqs {
		if r.Requested > r.Available {
			return &domain.InsufficientStockError{
				ProductID:   r.ProductID,
				ProductName: r.ProductName,
			}
		}
	}
	return nil
}

func requirementsFor(cart *domain.Cart) []StockRequirement {
	reqs := make([]StockRequirement, 0, len(cart.CartItems))
	for _, item := range cart.CartItems {
		reqs = append(reqs, StockRequirement{
			ProductID:   item.ProductID,
			ProductName: item.Product.Name,
			Requested:   item.Quantity,
			Available:   item.Product.StockQuantity,
		})
	}
	return reqs
}

func orderTotal(cart *domain.Cart) int64 {
	var total int64
	for _, item := range cart.CartItems {
		total += item.Product.Price * int64(item.Quantity)
	}
	return total
}
