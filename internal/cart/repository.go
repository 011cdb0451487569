package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/joao-fontenele/monocart/internal/domain"
)

const pqForeignKeyViolation = "23503"

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Get returns the user's cart with its items and their products. A user
// without a cart gets an empty one that is not persisted.
func (r *Repository) Get(ctx context.Context, userID int64) (*domain.Cart, error) {
	cart := &domain.Cart{CartItems: []domain.CartItem{}}

	err := r.db.QueryRowContext(ctx, `SELECT id, user_id FROM carts WHERE user_id = $1`, userID).
		Scan(&cart.ID, &cart.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cart, nil
		}
		return nil, fmt.Errorf("select cart: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT ci.id, ci.product_id, ci.quantity,
		       p.name, p.description, p.price, p.images, p.stock_quantity, p.category_id
		FROM cart_items ci
		JOIN products p ON p.id = ci.product_id
		WHERE ci.cart_id = $1
		ORDER BY ci.id
	`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("select cart items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		item := domain.CartItem{CartID: cart.ID, Product: &domain.Product{}}
		p := item.Product
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity,
			&p.Name, &p.Description, &p.Price, pq.Array(&p.Images), &p.StockQuantity, &p.CategoryID); err != nil {
			return nil, err
		}
		p.ID = item.ProductID
		cart.CartItems = append(cart.CartItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return cart, nil
}

func (r *Repository) Products(ctx context.Context, ids []int64) (map[int64]*domain.Product, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, description, price, images, stock_quantity, category_id
		FROM products
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := make(map[int64]*domain.Product, len(ids))
	for rows.Next() {
		p := &domain.Product{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, pq.Array(&p.Images),
			&p.StockQuantity, &p.CategoryID); err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return products, rows.Err()
}

// AddItem puts qty of the product in the user's cart, creating the cart on
// first use. An existing line for the product is incremented in the same
// statement; created reports whether a new line was inserted.
func (r *Repository) AddItem(ctx context.Context, userID, productID int64, qty int) (*domain.CartItem, bool, error) {
	var cartID int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO carts (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING id
	`, userID).Scan(&cartID)
	if err != nil {
		return nil, false, fmt.Errorf("ensure cart: %w", err)
	}

	item := &domain.CartItem{CartID: cartID, ProductID: productID}
	var created bool
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO cart_items (cart_id, product_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (cart_id, product_id)
		DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		RETURNING id, quantity, (xmax = 0) AS created
	`, cartID, productID, qty).Scan(&item.ID, &item.Quantity, &created)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqForeignKeyViolation {
			return nil, false, domain.ErrNotFound
		}
		return nil, false, fmt.Errorf("upsert cart item: %w", err)
	}

	return item, created, nil
}

// UpdateItem sets the quantity of a line in the user's cart. Lines that do
// not exist or sit in another user's cart yield domain.ErrForbidden.
func (r *Repository) UpdateItem(ctx context.Context, userID, itemID int64, qty int) (*domain.CartItem, error) {
	item := &domain.CartItem{}
	err := r.db.QueryRowContext(ctx, `
		UPDATE cart_items ci
		SET quantity = $3
		FROM carts c
		WHERE ci.id = $2 AND ci.cart_id = c.id AND c.user_id = $1
		RETURNING ci.id, ci.cart_id, ci.product_id, ci.quantity
	`, userID, itemID, qty).Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrForbidden
		}
		return nil, fmt.Errorf("update cart item: %w", err)
	}
	return item, nil
}

func (r *Repository) RemoveItem(ctx context.Context, userID, itemID int64) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items ci
		USING carts c
		WHERE ci.id = $2 AND ci.cart_id = c.id AND c.user_id = $1
	`, userID, itemID)
	if err != nil {
		return fmt.Errorf("delete cart item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrForbidden
	}
	return nil
}
