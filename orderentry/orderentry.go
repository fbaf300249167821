// Package orderentry places orders directly against the store, outside the wire
// protocol. It backs the addorder command.
package orderentry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"

	"order-shop/message"
	"order-shop/store"
)

// MaxItemIDs is the most item ids one order may name, repeats included.
const MaxItemIDs = 100

var ErrTooManyItems = errors.New("Too many items")

// ItemNotFoundError names a requested item that has no catalogue price.
type ItemNotFoundError struct {
	ID int32
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("Item not found %d", e.ID)
}

type ItemCount struct {
	ID    int32
	Count int32
}

// CountItems folds repeated ids into quantities, keeping first-seen order.
func CountItems(ids []int32) ([]ItemCount, error) {
	if len(ids) > MaxItemIDs {
		return nil, fmt.Errorf("%w: %d ids, at most %d", ErrTooManyItems, len(ids), MaxItemIDs)
	}
	counts := make([]ItemCount, 0, len(ids))
	index := make(map[int32]int, len(ids))
	for _, id := range ids {
		if i, ok := index[id]; ok {
			counts[i].Count++
			continue
		}
		index[id] = len(counts)
		counts = append(counts, ItemCount{ID: id, Count: 1})
	}
	return counts, nil
}

// Receipt is a committed order as read back from the store.
type Receipt struct {
	OrderID int32
	Items   []message.OrderItem
}

// Total is the order value in integer currency units.
func (r *Receipt) Total() int64 {
	var sum int64
	for _, it := range r.Items {
		sum += it.Total()
	}
	return sum
}

// WriteTo prints the receipt in the addorder output format.
func (r *Receipt) WriteTo(w io.Writer) (int64, error) {
	var written int64
	n, err := fmt.Fprintf(w, "Order ID: %d\nItems:\n", r.OrderID)
	written += int64(n)
	if err != nil {
		return written, err
	}
	for _, it := range r.Items {
		n, err = fmt.Fprintf(w, "  %s (%d x %d)\n", it.Name, it.Quantity, it.UnitPrice)
		written += int64(n)
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Place creates one order holding ids in a single transaction. Each distinct id
// becomes one line priced at the current catalogue price. Any failure rolls the
// whole order back.
func Place(ctx context.Context, st store.Store, ids []int32) (receipt *Receipt, err error) {
	counts, err := CountItems(ids)
	if err != nil {
		return nil, err
	}

	tx, err := st.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	orderID, err := tx.CreateOrder(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range counts {
		price, err := tx.ItemPrice(ctx, c.ID)
		if errors.Is(err, store.ErrNoResult) {
			return nil, &ItemNotFoundError{ID: c.ID}
		}
		if err != nil {
			return nil, err
		}
		if err := tx.AddOrderItem(ctx, orderID, c.ID, c.Count, price); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		committed = true // a failed commit has already ended the transaction
		return nil, err
	}
	committed = true

	items, err := st.OrderItems(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("order %d committed, reading it back: %w", orderID, err)
	}
	return &Receipt{OrderID: orderID, Items: items}, nil
}
