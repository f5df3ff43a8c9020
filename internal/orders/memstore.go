package orders

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store with snapshot rollback. One mutex covers a
// whole transaction, which serializes conflicting operations the same way
// the row locks do in Postgres.
type MemStore struct {
	mu          sync.Mutex
	products    map[int64]Product
	orders      map[int64]Order
	items       map[int64][]OrderItem
	idem        map[string]IdempotencyRecord
	nextOrderID int64
	nextItemID  int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		products: make(map[int64]Product),
		orders:   make(map[int64]Order),
		items:    make(map[int64][]OrderItem),
		idem:     make(map[string]IdempotencyRecord),
	}
}

// AddProduct seeds a product row.
func (m *MemStore) AddProduct(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

// ProductStock reports the current stock of a product.
func (m *MemStore) ProductStock(id int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.products[id].Stock
}

type memSnapshot struct {
	products map[int64]Product
	orders   map[int64]Order
	items    map[int64][]OrderItem
	idem     map[string]IdempotencyRecord
}

func (m *MemStore) snapshot() memSnapshot {
	s := memSnapshot{
		products: make(map[int64]Product, len(m.products)),
		orders:   make(map[int64]Order, len(m.orders)),
		items:    make(map[int64][]OrderItem, len(m.items)),
		idem:     make(map[string]IdempotencyRecord, len(m.idem)),
	}
	for k, v := range m.products {
		s.products[k] = v
	}
	for k, v := range m.orders {
		s.orders[k] = v
	}
	for k, v := range m.items {
		s.items[k] = append([]OrderItem(nil), v...)
	}
	for k, v := range m.idem {
		s.idem[k] = v
	}
	return s
}

func (m *MemStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memTx{s: m}); err != nil {
		m.products = snap.products
		m.orders = snap.orders
		m.items = snap.items
		m.idem = snap.idem
		return err
	}
	return nil
}

func (m *MemStore) GetOrder(ctx context.Context, id int64) (Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (m *MemStore) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]OrderItem(nil), m.items[orderID]...), nil
}

func (m *MemStore) ListProducts(ctx context.Context) ([]Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	return out, nil
}

func (m *MemStore) GetIdempotencyRecord(ctx context.Context, key string) (IdempotencyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.idem[key]
	if !ok {
		return IdempotencyRecord{}, fmt.Errorf("idempotency key %q: %w", key, ErrNotFound)
	}
	return rec, nil
}

type memTx struct {
	s *MemStore
}

func (t *memTx) GetProductForUpdate(ctx context.Context, productID int64) (Product, error) {
	p, ok := t.s.products[productID]
	if !ok {
		return Product{}, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	return p, nil
}

func (t *memTx) AdjustStock(ctx context.Context, productID int64, delta int) error {
	p, ok := t.s.products[productID]
	if !ok {
		return fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
	}
	p.Stock += delta
	t.s.products[productID] = p
	return nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *Order) error {
	t.s.nextOrderID++
	o.ID = t.s.nextOrderID
	t.s.orders[o.ID] = *o
	return nil
}

func (t *memTx) InsertItems(ctx context.Context, items []OrderItem) error {
	for i := range items {
		t.s.nextItemID++
		items[i].ID = t.s.nextItemID
		t.s.items[items[i].OrderID] = append(t.s.items[items[i].OrderID], items[i])
	}
	return nil
}

func (t *memTx) GetOrderForUpdate(ctx context.Context, id int64) (Order, error) {
	o, ok := t.s.orders[id]
	if !ok {
		return Order{}, ErrNotFound
	}
	return o, nil
}

func (t *memTx) SetStatus(ctx context.Context, orderID int64, s Status) error {
	o, ok := t.s.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	o.Status = s
	t.s.orders[orderID] = o
	return nil
}

func (t *memTx) InsertIdempotencyRecord(ctx context.Context, rec IdempotencyRecord) error {
	if _, ok := t.s.idem[rec.Key]; ok {
		return fmt.Errorf("idempotency key %q: %w", rec.Key, ErrDuplicateKey)
	}
	t.s.idem[rec.Key] = rec
	return nil
}

func (t *memTx) ListItems(ctx context.Context, orderID int64) ([]OrderItem, error) {
	return append([]OrderItem(nil), t.s.items[orderID]...), nil
}
