// Package message defines the order records exchanged between the store, the server
// and the client.
//
// Text fields are bounded: the wire reserves a fixed-size slot for each of them with
// room for a NUL terminator. Bound truncates a value to fit its slot.
package message

import "unicode/utf8"

// Field bounds in bytes, excluding the terminator.
const (
	MaxStatusLen   = 49
	MaxDateLen     = 31
	MaxItemNameLen = 254
)

// Order is the header row of an order.
type Order struct {
	ID     int32  `json:"id"`
	Status string `json:"status"` // e.g. "created", "shipped"
	Date   string `json:"date"`   // last state change
}

// OrderItem is one line of an order. UnitPrice is in integer currency units.
type OrderItem struct {
	ID        int32  `json:"id"`
	Quantity  int32  `json:"quantity"`
	UnitPrice int32  `json:"unit_price"`
	Name      string `json:"name"`
}

// NameLen is the explicit length carried next to the name on the wire.
func (i OrderItem) NameLen() uint64 {
	return uint64(len(Bound(i.Name, MaxItemNameLen)))
}

// Total is quantity times unit price.
func (i OrderItem) Total() int64 {
	return int64(i.Quantity) * int64(i.UnitPrice)
}

// FullOrderItem is the denormalized row returned when listing recent orders.
type FullOrderItem struct {
	Order Order     `json:"order"`
	Item  OrderItem `json:"item"`
}

// Bounded returns a copy whose text fields fit their wire slots.
func (f FullOrderItem) Bounded() FullOrderItem {
	f.Order.Status = Bound(f.Order.Status, MaxStatusLen)
	f.Order.Date = Bound(f.Order.Date, MaxDateLen)
	f.Item.Name = Bound(f.Item.Name, MaxItemNameLen)
	return f
}

// Bound truncates s to at most max bytes without splitting a UTF-8 sequence.
func Bound(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
