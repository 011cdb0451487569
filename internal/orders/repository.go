package orders

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/monocart/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) WithinTx(ctx context.Context, fn func(tx CheckoutTx) error) error {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&checkoutTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ListByUser returns the user's orders, newest first, with their items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[int64]*domain.Order)
	var orderIDs []int64

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt); err != nil {
			return nil, err
		}
		order.Items = []domain.OrderItem{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	itemRows, err := r.db.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item domain.OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, err
		}
		order := orderMap[item.OrderID]
		order.Items = append(order.Items, item)
	}

	if err := itemRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		orders = append(orders, *orderMap[id])
	}

	return orders, nil
}

// GetForUser returns the order with its items and payment. It returns
// domain.ErrNotFound when the order does not exist or belongs to someone
// else.
func (r *OrderRepository) GetForUser(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at
		FROM orders
		WHERE id = $1 AND user_id = $2
	`, orderID, userID).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	if err := loadOrderDetails(ctx, r.db, order); err != nil {
		return nil, err
	}
	return order, nil
}

func loadOrderDetails(ctx context.Context, q querier, order *domain.Order) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, order_id, product_id, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, order.ID)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	order.Items = []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	payment := &domain.Payment{}
	err = q.QueryRowContext(ctx, `
		SELECT id, order_id, amount, provider, status, transaction_id, created_at
		FROM payments
		WHERE order_id = $1
	`, order.ID).Scan(&payment.ID, &payment.OrderID, &payment.Amount, &payment.Provider,
		&payment.Status, &payment.TransactionID, &payment.CreatedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return err
	default:
		order.Payment = payment
	}

	return nil
}

type checkoutTx struct {
	tx *sql.Tx
}

func (t *checkoutTx) LockCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart := &domain.Cart{UserID: userID}

	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM carts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&cart.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	// Products are locked in id order so concurrent checkouts over
	// overlapping carts cannot deadlock.
	lockRows, err := t.tx.QueryContext(ctx, `
		SELECT p.id
		FROM products p
		JOIN cart_items ci ON ci.product_id = p.id
		WHERE ci.cart_id = $1
		ORDER BY p.id
		FOR UPDATE OF p
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	for lockRows.Next() {
		var id int64
		if err := lockRows.Scan(&id); err != nil {
			_ = lockRows.Close()
			return nil, err
		}
	}
	if err := lockRows.Err(); err != nil {
		_ = lockRows.Close()
		return nil, err
	}
	_ = lockRows.Close()

	rows, err := t.tx.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, ci.quantity,
		       p.name, p.price, p.stock_quantity, p.category_id
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cart.ID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cart.CartItems = []domain.CartItem{}
	for rows.Next() {
		item := domain.CartItem{CartID: cart.ID, Product: &domain.Product{}}
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity,
			&item.Product.Name, &item.Product.Price, &item.Product.StockQuantity, &item.Product.CategoryID); err != nil {
			return nil, err
		}
		item.Product.ID = item.ProductID
		cart.CartItems = append(cart.CartItems, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

func (t *checkoutTx) FindOrderByKey(ctx context.Context, userID int64, key string) (*domain.Order, error) {
	order := &domain.Order{}

	err := t.tx.QueryRowContext(ctx, `
		SELECT id, user_id, total_amount, status, created_at
		FROM orders
		WHERE user_id = $1 AND idempotency_key = $2
	`, userID, key).Scan(&order.ID, &order.UserID, &order.TotalAmount, &order.Status, &order.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if err := loadOrderDetails(ctx, t.tx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (t *checkoutTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO orders (user_id, total_amount, status, idempotency_key)
		VALUES ($1, $2, $3, NULLIF($4, ''))
		RETURNING id, created_at
	`, order.UserID, order.TotalAmount, order.Status, order.IdempotencyKey).Scan(&order.ID, &order.CreatedAt)
}

func (t *checkoutTx) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	return t.tx.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, amount, provider, status, transaction_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, payment.OrderID, payment.Amount, payment.Provider, payment.Status, payment.TransactionID).
		Scan(&payment.ID, &payment.CreatedAt)
}

func (t *checkoutTx) InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	for i := range items {
		err := t.tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, product_id, quantity, price)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, orderID, items[i].ProductID, items[i].Quantity, items[i].Price).Scan(&items[i].ID)
		if err != nil {
			return err
		}
		items[i].OrderID = orderID
	}
	return nil
}

func (t *checkoutTx) DecrementStock(ctx context.Context, productID int64, qty int) (int, bool, error) {
	var stock int
	err := t.tx.QueryRowContext(ctx, `
		UPDATE products
		SET stock_quantity = stock_quantity - $2
		WHERE id = $1 AND stock_quantity >= $2
		RETURNING stock_quantity
	`, productID, qty).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return stock, true, nil
}

func (t *checkoutTx) ClearCart(ctx context.Context, cartID int64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE cart_id = $1`, cartID)
	return err
}
