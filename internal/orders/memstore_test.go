package orders

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/joao-fontenele/monocart/internal/domain"
)

var errInjected = errors.New("injected failure")

type memCartLine struct {
	ID        int64
	ProductID int64
	Quantity  int
}

type memCart struct {
	ID    int64
	Lines []memCartLine
}

type memState struct {
	Carts      map[int64]*memCart
	Products   map[int64]domain.Product
	Orders     []domain.Order
	Payments   []domain.Payment
	OrderItems []domain.OrderItem
	NextID     int64
}

func (s memState) clone() memState {
	out := memState{
		Carts:      make(map[int64]*memCart, len(s.Carts)),
		Products:   make(map[int64]domain.Product, len(s.Products)),
		Orders:     append([]domain.Order(nil), s.Orders...),
		Payments:   append([]domain.Payment(nil), s.Payments...),
		OrderItems: append([]domain.OrderItem(nil), s.OrderItems...),
		NextID:     s.NextID,
	}
	for userID, c := range s.Carts {
		out.Carts[userID] = &memCart{ID: c.ID, Lines: append([]memCartLine(nil), c.Lines...)}
	}
	for id, p := range s.Products {
		out.Products[id] = p
	}
	return out
}

func (s *memState) id() int64 {
	s.NextID++
	return s.NextID
}

// memStore serializes transactions behind one mutex and applies a working
// copy of the state on commit.
type memStore struct {
	mu     sync.Mutex
	state  memState
	failOn string
}

func newMemStore() *memStore {
	return &memStore{state: memState{
		Carts:    map[int64]*memCart{},
		Products: map[int64]domain.Product{},
	}}
}

func (m *memStore) addProduct(name string, price int64, stock int) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.state.id()
	m.state.Products[id] = domain.Product{ID: id, Name: name, Price: price, StockQuantity: stock, CategoryID: 1}
	return id
}

func (m *memStore) addToCart(userID, productID int64, qty int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.state.Carts[userID]
	if !ok {
		c = &memCart{ID: m.state.id()}
		m.state.Carts[userID] = c
	}
	c.Lines = append(c.Lines, memCartLine{ID: m.state.id(), ProductID: productID, Quantity: qty})
}

func (m *memStore) setPrice(productID int64, price int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.state.Products[productID]
	p.Price = price
	m.state.Products[productID] = p
}

func (m *memStore) snapshot() memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) WithinTx(ctx context.Context, fn func(tx CheckoutTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{st: &work, failOn: m.failOn}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTx struct {
	st     *memState
	failOn string
}

func (t *memTx) check(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if t.failOn == op {
		return errInjected
	}
	return nil
}

func (t *memTx) LockCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	if err := t.check(ctx, "LockCart"); err != nil {
		return nil, err
	}
	c, ok := t.st.Carts[userID]
	if !ok {
		return nil, nil
	}
	cart := &domain.Cart{ID: c.ID, UserID: userID, CartItems: []domain.CartItem{}}
	for _, l := range c.Lines {
		p := t.st.Products[l.ProductID]
		cart.CartItems = append(cart.CartItems, domain.CartItem{
			ID: l.ID, CartID: c.ID, ProductID: l.ProductID, Quantity: l.Quantity, Product: &p,
		})
	}
	return cart, nil
}

func (t *memTx) FindOrderByKey(ctx context.Context, userID int64, key string) (*domain.Order, error) {
	if err := t.check(ctx, "FindOrderByKey"); err != nil {
		return nil, err
	}
	for _, o := range t.st.Orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			found := o
			return &found, nil
		}
	}
	return nil, nil
}

func (t *memTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if err := t.check(ctx, "InsertOrder"); err != nil {
		return err
	}
	order.ID = t.st.id()
	order.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	t.st.Orders = append(t.st.Orders, *order)
	return nil
}

func (t *memTx) InsertPayment(ctx context.Context, payment *domain.Payment) error {
	if err := t.check(ctx, "InsertPayment"); err != nil {
		return err
	}
	payment.ID = t.st.id()
	t.st.Payments = append(t.st.Payments, *payment)
	return nil
}

func (t *memTx) InsertOrderItems(ctx context.Context, orderID int64, items []domain.OrderItem) error {
	if err := t.check(ctx, "InsertOrderItems"); err != nil {
		return err
	}
	for i := range items {
		items[i].ID = t.st.id()
		items[i].OrderID = orderID
		t.st.OrderItems = append(t.st.OrderItems, items[i])
	}
	return nil
}

func (t *memTx) DecrementStock(ctx context.Context, productID int64, qty int) (int, bool, error) {
	if err := t.check(ctx, "DecrementStock"); err != nil {
		return 0, false, err
	}
	p := t.st.Products[productID]
	if p.StockQuantity < qty {
		return 0, false, nil
	}
	p.StockQuantity -= qty
	t.st.Products[productID] = p
	return p.StockQuantity, true, nil
}

func (t *memTx) ClearCart(ctx context.Context, cartID int64) error {
	if err := t.check(ctx, "ClearCart"); err != nil {
		return err
	}
	for _, c := range t.st.Carts {
		if c.ID == cartID {
			c.Lines = nil
		}
	}
	return nil
}
