package orders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/monocart/internal/domain"
)

type recordingFanout struct {
	mu     sync.Mutex
	events []domain.InventoryUpdateEvent
}

func (f *recordingFanout) Publish(events ...domain.InventoryUpdateEvent) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, events...)
	return len(events)
}

func (f *recordingFanout) all() []domain.InventoryUpdateEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.InventoryUpdateEvent(nil), f.events...)
}

type publishedEvent struct {
	key   string
	event any
}

type recordingPublisher struct {
	mu   sync.Mutex
	sent []publishedEvent
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, publishedEvent{key: key, event: event})
	return p.err
}

type recordingInvalidator struct {
	mu    sync.Mutex
	users []int64
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPlaceOrder_Success(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	lamp := store.addProduct("Lamp", 4000, 3)
	store.addToCart(1, mug, 2)
	store.addToCart(1, lamp, 3)

	fanout := &recordingFanout{}
	inventory := &recordingPublisher{}
	placed := &recordingPublisher{}
	carts := &recordingInvalidator{}
	svc := NewService(store, fanout, discardLogger(),
		WithInventoryEvents(inventory),
		WithOrderEvents(placed),
		WithCartInvalidator(carts),
	)

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1, Email: "a@example.com"})
	require.NoError(t, err)
	svc.Wait()

	require.False(t, res.Replayed)
	order := res.Order
	assert.Equal(t, int64(1250*2+4000*3), order.TotalAmount)
	assert.Equal(t, domain.OrderStatusPaid, order.Status)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(1250), order.Items[0].Price)
	assert.Equal(t, int64(4000), order.Items[1].Price)

	require.NotNil(t, order.Payment)
	assert.Equal(t, order.TotalAmount, order.Payment.Amount)
	assert.Equal(t, domain.PaymentStatusSuccess, order.Payment.Status)
	assert.Equal(t, domain.PaymentProviderMock, order.Payment.Provider)
	assert.Regexp(t, regexp.MustCompile(`^txn_[0-9a-f]{20}$`), order.Payment.TransactionID)

	state := store.snapshot()
	assert.Equal(t, 8, state.Products[mug].StockQuantity)
	assert.Equal(t, 0, state.Products[lamp].StockQuantity)
	assert.Empty(t, state.Carts[1].Lines)
	assert.Len(t, state.Orders, 1)
	assert.Len(t, state.Payments, 1)
	assert.Len(t, state.OrderItems, 2)

	assert.Equal(t, []domain.InventoryUpdateEvent{
		domain.NewInventoryUpdate(mug, 8),
		domain.NewInventoryUpdate(lamp, 0),
	}, fanout.all())
	assert.Len(t, inventory.sent, 2)
	require.Len(t, placed.sent, 1)
	ev, ok := placed.sent[0].event.(domain.OrderPlacedEvent)
	require.True(t, ok)
	assert.Equal(t, order.ID, ev.OrderID)
	assert.Equal(t, "a@example.com", ev.Email)
	assert.Equal(t, []int64{1}, carts.users)
}

func TestPlaceOrder_InsufficientStockRollsBack(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	lamp := store.addProduct("Lamp", 4000, 1)
	desk := store.addProduct("Desk", 9000, 0)
	store.addToCart(1, mug, 2)
	store.addToCart(1, lamp, 2)
	store.addToCart(1, desk, 1)

	fanout := &recordingFanout{}
	svc := NewService(store, fanout, discardLogger())
	before := store.snapshot()

	_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
	require.Error(t, err)
	var stockErr *domain.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	assert.Equal(t, "Lamp", stockErr.ProductName)
	assert.Equal(t, before, store.snapshot())

	_, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, "Lamp", stockErr.ProductName)
	assert.Equal(t, before, store.snapshot())
	assert.Empty(t, fanout.all())
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	store.addToCart(2, mug, 1)

	svc := NewService(store, &recordingFanout{}, discardLogger())

	t.Run("no cart", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	t.Run("cart emptied by previous order", func(t *testing.T) {
		_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 2})
		require.NoError(t, err)
		_, err = svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 2})
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	})

	assert.Len(t, store.snapshot().Orders, 1)
}

func TestPlaceOrder_FailureMidTransactionRollsBack(t *testing.T) {
	for _, op := range []string{"InsertPayment", "InsertOrderItems", "DecrementStock", "ClearCart"} {
		t.Run(op, func(t *testing.T) {
			store := newMemStore()
			mug := store.addProduct("Mug", 1250, 10)
			store.addToCart(1, mug, 2)
			store.failOn = op

			fanout := &recordingFanout{}
			placed := &recordingPublisher{}
			svc := NewService(store, fanout, discardLogger(), WithOrderEvents(placed))
			before := store.snapshot()

			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
			svc.Wait()
			require.ErrorIs(t, err, errInjected)
			assert.Equal(t, before, store.snapshot())
			assert.Empty(t, fanout.all())
			assert.Empty(t, placed.sent)
		})
	}
}

func TestPlaceOrder_IdempotencyKeyReplays(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	store.addToCart(1, mug, 2)

	fanout := &recordingFanout{}
	svc := NewService(store, fanout, discardLogger())
	req := PlaceOrderRequest{UserID: 1, IdempotencyKey: "retry-1"}

	first, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.Replayed)

	// a refilled cart must not be charged again under the same key
	store.addToCart(1, mug, 1)
	second, err := svc.PlaceOrder(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	state := store.snapshot()
	assert.Len(t, state.Orders, 1)
	assert.Equal(t, 8, state.Products[mug].StockQuantity)
	assert.Len(t, state.Carts[1].Lines, 1)
	assert.Len(t, fanout.all(), 1)

	third, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1, IdempotencyKey: "retry-2"})
	require.NoError(t, err)
	assert.False(t, third.Replayed)
	assert.NotEqual(t, first.Order.ID, third.Order.ID)
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	store := newMemStore()
	last := store.addProduct("Last One", 999, 1)
	const buyers = 8
	for u := int64(1); u <= buyers; u++ {
		store.addToCart(u, last, 1)
	}

	svc := NewService(store, &recordingFanout{}, discardLogger())

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		shortages int
	)
	for u := int64(1); u <= buyers; u++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: userID})
			mu.Lock()
			defer mu.Unlock()
			var stockErr *domain.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &stockErr):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, shortages)
	state := store.snapshot()
	assert.Equal(t, 0, state.Products[last].StockQuantity)
	assert.Len(t, state.Orders, 1)
}

func TestPlaceOrder_PriceSnapshot(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	store.addToCart(1, mug, 1)

	svc := NewService(store, nil, discardLogger())
	res, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
	require.NoError(t, err)

	store.setPrice(mug, 9999)

	state := store.snapshot()
	require.Len(t, state.OrderItems, 1)
	assert.Equal(t, int64(1250), state.OrderItems[0].Price)
	assert.Equal(t, int64(1250), state.Orders[0].TotalAmount)
	assert.Equal(t, int64(1250), res.Order.Items[0].Price)
}

func TestPlaceOrder_SurvivesCancelledRequest(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	store.addToCart(1, mug, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(store, nil, discardLogger())
	_, err := svc.PlaceOrder(ctx, PlaceOrderRequest{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, 9, store.snapshot().Products[mug].StockQuantity)
}

func TestPlaceOrder_PublishFailureDoesNotFailOrder(t *testing.T) {
	store := newMemStore()
	mug := store.addProduct("Mug", 1250, 10)
	store.addToCart(1, mug, 1)

	broken := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(store, nil, discardLogger(), WithInventoryEvents(broken), WithOrderEvents(broken))

	res, err := svc.PlaceOrder(context.Background(), PlaceOrderRequest{UserID: 1})
	svc.Wait()
	require.NoError(t, err)
	assert.NotZero(t, res.Order.ID)
	assert.Len(t, broken.sent, 2)
}

func TestMergeUpdateKeepsLastLevelPerProduct(t *testing.T) {
	var updates []domain.InventoryUpdateEvent
	updates = mergeUpdate(updates, domain.NewInventoryUpdate(1, 5))
	updates = mergeUpdate(updates, domain.NewInventoryUpdate(2, 3))
	updates = mergeUpdate(updates, domain.NewInventoryUpdate(1, 4))

	assert.Equal(t, []domain.InventoryUpdateEvent{
		domain.NewInventoryUpdate(1, 4),
		domain.NewInventoryUpdate(2, 3),
	}, updates)
}
