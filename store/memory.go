package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"order-shop/message"
)

const dateLayout = "2006-01-02 15:04:05"

// Memory is an in-process Store. Transactions buffer their writes and apply them
// on Commit under the store lock.
type Memory struct {
	mu     sync.RWMutex
	items  map[int32]memItem
	orders []memOrder
	nextID int32
	now    func() time.Time
	// ListErr, when set, is returned by ListRecentOrderItems.
	ListErr error
}

type memItem struct {
	name  string
	price int32
}

type memOrder struct {
	id     int32
	status string
	date   time.Time
	lines  []message.OrderItem
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{items: make(map[int32]memItem), nextID: 1, now: time.Now}
}

// AddItem adds or replaces a catalogue item.
func (m *Memory) AddItem(id int32, name string, price int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[id] = memItem{name: name, price: price}
}

// Seed appends fully formed rows, one order per distinct order id.
func (m *Memory) Seed(rows ...message.FullOrderItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		idx := -1
		for i := range m.orders {
			if m.orders[i].id == r.Order.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			date, err := time.Parse(dateLayout, r.Order.Date)
			if err != nil {
				date = m.now()
			}
			m.orders = append(m.orders, memOrder{id: r.Order.ID, status: r.Order.Status, date: date})
			idx = len(m.orders) - 1
			if r.Order.ID >= m.nextID {
				m.nextID = r.Order.ID + 1
			}
		}
		m.orders[idx].lines = append(m.orders[idx].lines, r.Item)
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) ItemPrice(ctx context.Context, itemID int32) (int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.price(itemID)
}

func (m *Memory) price(itemID int32) (int32, error) {
	it, ok := m.items[itemID]
	if !ok {
		return 0, newError("item price", KindNoResult, nil, "item not found %d", itemID)
	}
	return it.price, nil
}

// ListRecentOrderItems returns rows ordered by order date, newest first. A limit
// below 1 returns no rows.
func (m *Memory) ListRecentOrderItems(ctx context.Context, limit int) ([]message.FullOrderItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, newError("list recent order items", KindDatabase, err, "%v", err)
	}
	if limit <= 0 {
		return nil, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.ListErr != nil {
		return nil, newError("list recent order items", KindDatabase, m.ListErr, "%v", m.ListErr)
	}

	orders := make([]memOrder, len(m.orders))
	copy(orders, m.orders)
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].date.After(orders[j].date) })

	var out []message.FullOrderItem
	for _, o := range orders {
		for _, line := range o.lines {
			if len(out) == limit {
				return out, nil
			}
			out = append(out, message.FullOrderItem{
				Order: message.Order{ID: o.id, Status: o.status, Date: o.date.Format(dateLayout)},
				Item:  line,
			}.Bounded())
		}
	}
	return out, nil
}

func (m *Memory) OrderItems(ctx context.Context, orderID int32) ([]message.OrderItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.orders {
		if o.id == orderID {
			out := make([]message.OrderItem, len(o.lines))
			copy(out, o.lines)
			return out, nil
		}
	}
	return nil, nil
}

func (m *Memory) BeginTx(ctx context.Context) (Tx, error) {
	return &memTx{m: m}, nil
}

type memTx struct {
	m       *Memory
	orderID int32
	created bool
	lines   []message.OrderItem
	done    bool
}

func (t *memTx) ItemPrice(ctx context.Context, itemID int32) (int32, error) {
	return t.m.ItemPrice(ctx, itemID)
}

func (t *memTx) CreateOrder(ctx context.Context) (int32, error) {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.orderID = t.m.nextID
	t.m.nextID++
	t.created = true
	return t.orderID, nil
}

func (t *memTx) AddOrderItem(ctx context.Context, orderID, itemID, quantity, price int32) error {
	if !t.created || orderID != t.orderID {
		return newError("add order item", KindDatabase, nil, "order %d not created in this transaction", orderID)
	}
	t.m.mu.RLock()
	it, ok := t.m.items[itemID]
	t.m.mu.RUnlock()
	if !ok {
		return newError("add order item", KindDatabase, nil, "foreign key violation: item %d", itemID)
	}
	t.lines = append(t.lines, message.OrderItem{ID: itemID, Name: it.name, Quantity: quantity, UnitPrice: price})
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return newError("commit", KindDatabase, nil, "transaction already finished")
	}
	t.done = true
	if !t.created {
		return nil
	}
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	t.m.orders = append(t.m.orders, memOrder{id: t.orderID, status: "created", date: t.m.now(), lines: t.lines})
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

var _ Store = (*Memory)(nil)
