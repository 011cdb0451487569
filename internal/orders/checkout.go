package orders

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/joao-fontenele/monocart/internal/domain"
	"github.com/joao-fontenele/monocart/internal/telemetry"
)

// CheckoutTx is the set of statements the checkout runs inside a single
// database transaction.
type CheckoutTx interface {
	// LockCart locks the user's cart and the products it references and
	// returns the cart with its items and products in cart-item order. It
	// returns nil when the user has no cart.
	LockCart(ctx context.Context, userID int64) (*domain.Cart, error)
	// FindOrderByKey returns the user's order placed with key, or nil.
	FindOrderByKey(ctx context.Context, userID int64, key string) (*domain.Order, error)
	InsertOrder(ctx context.Context, order *domain.Order) error
	InsertPayment(ctx context.Context, payment *domain.Payment) error
	InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error
	// DecrementStock subtracts qty from the product's stock in place and
	// returns the new level. ok is false when the stock would go negative.
	DecrementStock(ctx context.Context, productID int64, qty int) (stock int, ok bool, err error)
	ClearCart(ctx context.Context, cartID int64) error
}

// Store runs fn in a transaction that is committed when fn returns nil and
// rolled back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx CheckoutTx) error) error
}

// Fanout receives inventory updates after a checkout commits.
type Fanout interface {
	Publish(events ...domain.InventoryUpdateEvent) int
}

// Publisher sends an event to a message topic.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type CartInvalidator interface {
	Invalidate(ctx context.Context, userID int64) error
}

type PlaceOrderRequest struct {
	UserID         int64
	Email          string
	IdempotencyKey string
}

type PlaceOrderResult struct {
	Order *domain.Order
	// Replayed is set when the idempotency key matched an earlier order and
	// nothing was written.
	Replayed bool
}

type Option func(*Service)

func WithInventoryEvents(p Publisher) Option { return func(s *Service) { s.inventoryEvents = p } }
func WithOrderEvents(p Publisher) Option     { return func(s *Service) { s.orderEvents = p } }
func WithCartInvalidator(c CartInvalidator) Option {
	return func(s *Service) { s.carts = c }
}
func WithMetrics(m *telemetry.CheckoutMetrics) Option { return func(s *Service) { s.metrics = m } }
func WithTxTimeout(d time.Duration) Option            { return func(s *Service) { s.txTimeout = d } }
func WithPublishTimeout(d time.Duration) Option       { return func(s *Service) { s.publishTimeout = d } }

type Service struct {
	store           Store
	fanout          Fanout
	inventoryEvents Publisher
	orderEvents     Publisher
	carts           CartInvalidator
	metrics         *telemetry.CheckoutMetrics
	logger          *slog.Logger
	txTimeout       time.Duration
	publishTimeout  time.Duration
	now             func() time.Time
	background      sync.WaitGroup
}

func NewService(store Store, fanout Fanout, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:          store,
		fanout:         fanout,
		logger:         logger,
		txTimeout:      15 * time.Second,
		publishTimeout: 5 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrder converts the user's cart into a paid order. Stock check, order,
// payment, order items, stock decrement and cart clear commit together or not
// at all. The transaction runs detached from ctx cancellation so a dropped
// client cannot leave it half done; it is bounded by the tx timeout instead.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	start := s.now()

	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
	defer cancel()

	var (
		result  PlaceOrderResult
		updates []domain.InventoryUpdateEvent
	)

	err := s.store.WithinTx(txCtx, func(tx CheckoutTx) error {
		result, updates = PlaceOrderResult{}, nil

		cart, err := tx.LockCart(txCtx, req.UserID)
		if err != nil {
			return fmt.Errorf("load cart: %w", err)
		}

		if req.IdempotencyKey != "" {
			existing, err := tx.FindOrderByKey(txCtx, req.UserID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("find order by idempotency key: %w", err)
			}
			if existing != nil {
				result = PlaceOrderResult{Order: existing, Replayed: true}
				return nil
			}
		}

		if cart == nil || len(cart.CartItems) == 0 {
			return domain.ErrEmptyCart
		}

		if err := CheckStock(requirementsFor(cart)); err != nil {
			return err
		}

		order := &domain.Order{
			UserID:         req.UserID,
			TotalAmount:    orderTotal(cart),
			Status:         domain.OrderStatusPaid,
			IdempotencyKey: req.IdempotencyKey,
		}
		if err := tx.InsertOrder(txCtx, order); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		txnID, err := newTransactionID()
		if err != nil {
			return fmt.Errorf("generate transaction id: %w", err)
		}
		payment := &domain.Payment{
			OrderID:       order.ID,
			Amount:        order.TotalAmount,
			Provider:      domain.PaymentProviderMock,
			Status:        domain.PaymentStatusSuccess,
			TransactionID: txnID,
		}
		if err := tx.InsertPayment(txCtx, payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}

		items := make([]domain.OrderItem, 0, len(cart.CartItems))
		for _, ci := range cart.CartItems {
			items = append(items, domain.OrderItem{
				OrderID:   order.ID,
				ProductID: ci.ProductID,
				Quantity:  ci.Quantity,
				Price:     ci.Product.Price,
			})
		}
		if err := tx.InsertOrderItems(txCtx, order.ID, items); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		for _, ci := range cart.CartItems {
			stock, ok, err := tx.DecrementStock(txCtx, ci.ProductID, ci.Quantity)
			if err != nil {
				return fmt.Errorf("decrement stock for product %d: %w", ci.ProductID, err)
			}
			if !ok {
				return &domain.InsufficientStockError{ProductID: ci.ProductID, ProductName: ci.Product.Name}
			}
			updates = mergeUpdate(updates, domain.NewInventoryUpdate(ci.ProductID, stock))
		}

		if err := tx.ClearCart(txCtx, cart.ID); err != nil {
			return fmt.Errorf("clear cart: %w", err)
		}

		order.Items = items
		order.Payment = payment
		result.Order = order
		return nil
	})

	elapsed := s.now().Sub(start)
	if err != nil {
		s.metrics.Record(ctx, outcomeOf(err), elapsed)
		return nil, err
	}

	if result.Replayed {
		s.metrics.Record(ctx, telemetry.OutcomeReplayed, elapsed)
		s.logger.Info("order replayed", "order_id", result.Order.ID, "user_id", req.UserID)
		return &result, nil
	}

	s.metrics.Record(ctx, telemetry.OutcomePlaced, elapsed)
	s.afterCommit(ctx, req, result.Order, updates)
	return &result, nil
}

// afterCommit runs the best-effort side effects of a committed checkout.
// None of them can fail the order.
func (s *Service) afterCommit(ctx context.Context, req PlaceOrderRequest, order *domain.Order, updates []domain.InventoryUpdateEvent) {
	s.logger.Info("order placed", "order_id", order.ID, "user_id", order.UserID, "total_amount", order.TotalAmount)

	if s.fanout != nil {
		delivered := s.fanout.Publish(updates...)
		s.metrics.InventoryEvents(ctx, len(updates))
		s.logger.Debug("inventory updates published", "order_id", order.ID, "events", len(updates), "deliveries", delivered)
	}

	detached := context.WithoutCancel(ctx)

	if s.carts != nil {
		cctx, cancel := context.WithTimeout(detached, s.publishTimeout)
		if err := s.carts.Invalidate(cctx, req.UserID); err != nil {
			s.logger.Warn("failed to invalidate cached cart", "error", err, "user_id", req.UserID)
		}
		cancel()
	}

	if s.inventoryEvents == nil && s.orderEvents == nil {
		return
	}

	placed := domain.OrderPlacedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Email:       req.Email,
		TotalAmount: order.TotalAmount,
		Items:       order.Items,
		Timestamp:   order.CreatedAt,
	}

	s.background.Add(1)
	go func() {
		defer s.background.Done()

		pctx, cancel := context.WithTimeout(detached, s.publishTimeout)
		defer cancel()

		if s.inventoryEvents != nil {
			for _, ev := range updates {
				if err := s.inventoryEvents.Publish(pctx, strconv.FormatInt(ev.ProductID, 10), ev); err != nil {
					s.logger.Error("failed to publish inventory update", "error", err, "product_id", ev.ProductID)
				}
			}
		}
		if s.orderEvents != nil {
			if err := s.orderEvents.Publish(pctx, strconv.FormatInt(order.ID, 10), placed); err != nil {
				s.logger.Error("failed to publish order placed event", "error", err, "order_id", order.ID)
			}
		}
	}()

}

// Wait blocks until background event publishing has finished.
func (s *Service) Wait() {
	s.background.Wait()
}

func mergeUpdate(updates []domain.InventoryUpdateEvent, ev domain.InventoryUpdateEvent) []domain.InventoryUpdateEvent {
	for i := range updates {
		if updates[i].ProductID == ev.ProductID {
			updates[i] = ev
			return updates
		}
	}
	return append(updates, ev)
}

func outcomeOf(err error) string {
	var stockErr *domain.InsufficientStockError
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return telemetry.OutcomeEmptyCart
	case errors.As(err, &stockErr):
		return telemetry.OutcomeInsufficientStock
	default:
		return telemetry.OutcomeError
	}
}

func newTransactionID() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "txn_" + hex.EncodeToString(b), nil
}
