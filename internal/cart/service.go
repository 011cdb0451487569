package cart

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joao-fontenele/monocart/internal/domain"
)

type Store interface {
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	// Products returns the current rows of the given products keyed by id.
	Products(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	AddItem(ctx context.Context, userID, productID int64, qty int) (*domain.CartItem, bool, error)
	UpdateItem(ctx context.Context, userID, itemID int64, qty int) (*domain.CartItem, error)
	RemoveItem(ctx context.Context, userID, itemID int64) error
}

// Cache holds cart lines only. Fill must not write when the generation has
// moved past gen since it was read.
type Cache interface {
	Generation(ctx context.Context, userID int64) (int64, error)
	Get(ctx context.Context, userID int64) (*domain.Cart, error)
	Fill(ctx context.Context, userID, gen int64, cart *domain.Cart) (bool, error)
	Invalidate(ctx context.Context, userID int64) error
}

// Service reads carts through an optional cache and invalidates the cached
// copy after every change. Cached lines are joined with fresh product rows on
// every read so price and stock are never served from the cache. Cache
// failures are logged and never fail a request.
type Service struct {
	store  Store
	cache  Cache
	logger *slog.Logger
}

// NewService builds a Service. cache may be nil.
func NewService(store Store, cache Cache, logger *slog.Logger) *Service {
	return &Service{store: store, cache: cache, logger: logger}
}

func (s *Service) Get(ctx context.Context, userID int64) (*domain.Cart, error) {
	if s.cache == nil {
		return s.store.Get(ctx, userID)
	}

	// The generation is read before the database so an invalidation that
	// lands in between makes the fill below a no-op.
	gen, err := s.cache.Generation(ctx, userID)
	if err != nil {
		s.logger.Warn("cart cache read failed", "error", err, "user_id", userID)
		return s.store.Get(ctx, userID)
	}

	lines, err := s.cache.Get(ctx, userID)
	switch {
	case err == nil:
		cart, ok, err := s.withProducts(ctx, lines)
		if err != nil {
			return nil, err
		}
		if ok {
			return cart, nil
		}
	case !errors.Is(err, ErrCacheMiss):
		s.logger.Warn("cart cache read failed", "error", err, "user_id", userID)
	}

	cart, err := s.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if _, err := s.cache.Fill(ctx, userID, gen, cart); err != nil {
		s.logger.Warn("cart cache write failed", "error", err, "user_id", userID)
	}
	return cart, nil
}

// withProducts attaches current product rows to cached lines. ok is false
// when a product is gone and the lines must be reloaded.
func (s *Service) withProducts(ctx context.Context, lines *domain.Cart) (*domain.Cart, bool, error) {
	if len(lines.CartItems) == 0 {
		return lines, true, nil
	}

	ids := make([]int64, 0, len(lines.CartItems))
	for _, item := range lines.CartItems {
		ids = append(ids, item.ProductID)
	}
	products, err := s.store.Products(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	for i := range lines.CartItems {
		p, ok := products[lines.CartItems[i].ProductID]
		if !ok {
			return nil, false, nil
		}
		lines.CartItems[i].Product = p
	}
	return lines, true, nil
}

func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*domain.CartItem, bool, error) {
	item, created, err := s.store.AddItem(ctx, userID, productID, qty)
	if err != nil {
		return nil, false, err
	}
	s.drop(ctx, userID)
	return item, created, nil
}

func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, qty int) (*domain.CartItem, error) {
	item, err := s.store.UpdateItem(ctx, userID, itemID, qty)
	if err != nil {
		return nil, err
	}
	s.drop(ctx, userID)
	return item, nil
}

func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) error {
	if err := s.store.RemoveItem(ctx, userID, itemID); err != nil {
		return err
	}
	s.drop(ctx, userID)
	return nil
}

// Invalidate drops the cached cart of the user and fences off fills that
// started before it. Checkout calls it after it empties the cart.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx, userID)
}

func (s *Service) drop(ctx context.Context, userID int64) {
	if err := s.Invalidate(ctx, userID); err != nil {
		s.logger.Warn("cart cache invalidation failed", "error", err, "user_id", userID)
	}
}
