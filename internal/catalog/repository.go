package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/joao-fontenele/monocart/internal/domain"
)

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateCategory(ctx context.Context, name string) (*domain.Category, error) {
	c := &domain.Category{Name: name}
	err := r.db.QueryRowContext(ctx, `INSERT INTO categories (name) VALUES ($1) RETURNING id`, name).Scan(&c.ID)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("insert category: %w", err)
	}
	return c, nil
}

func (r *Repository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	categories := []domain.Category{}
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// CreateProduct inserts p and fills in its id. An unknown category yields
// domain.ErrNotFound.
func (r *Repository) CreateProduct(ctx context.Context, p *domain.Product) error {
	if p.Images == nil {
		p.Images = []string{}
	}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO products (name, description, price, images, stock_quantity, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, p.Name, p.Description, p.Price, pq.Array(p.Images), p.StockQuantity, p.CategoryID).Scan(&p.ID)
	if err != nil {
		if pqCode(err) == pqForeignKeyViolation {
			return domain.ErrNotFound
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// ListProducts returns one page of products with their category, newest
// first unless sorted by price.
func (r *Repository) ListProducts(ctx context.Context, q ListQuery) ([]domain.Product, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`
		SELECT p.id, p.name, p.description, p.price, p.images, p.stock_quantity, p.category_id, c.name
		FROM products p
		JOIN categories c ON c.id = p.category_id`)

	if q.CategoryID != 0 {
		args = append(args, q.CategoryID)
		fmt.Fprintf(&sb, "\n\t\tWHERE p.category_id = $%d", len(args))
	}

	switch {
	case q.SortByPrice && q.Ascending:
		sb.WriteString("\n\t\tORDER BY p.price ASC, p.id DESC")
	case q.SortByPrice:
		sb.WriteString("\n\t\tORDER BY p.price DESC, p.id DESC")
	default:
		sb.WriteString("\n\t\tORDER BY p.id DESC")
	}

	args = append(args, q.Limit, q.Offset())
	fmt.Fprintf(&sb, "\n\t\tLIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("select products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	products := []domain.Product{}
	for rows.Next() {
		p := domain.Product{Category: &domain.Category{}}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, pq.Array(&p.Images),
			&p.StockQuantity, &p.CategoryID, &p.Category.Name); err != nil {
			return nil, err
		}
		p.Category.ID = p.CategoryID
		products = append(products, p)
	}
	return products, rows.Err()
}

func pqCode(err error) pq.ErrorCode {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code
	}
	return ""
}
