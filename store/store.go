// Package store provides access to orders, order items and item prices.
//
// The server only reads recent order items; the order-entry tool writes orders
// inside a transaction. Both go through the interfaces declared here.
package store

import (
	"context"
	"errors"
	"fmt"

	"order-shop/message"
)

// MaxErrorDetail caps Error.Detail in bytes.
const MaxErrorDetail = 512

// Kind classifies a store failure.
type Kind int

const (
	KindDatabase Kind = iota + 1 // the database rejected or failed the statement
	KindNoResult                 // a row was expected but none exists
)

func (k Kind) String() string {
	switch k {
	case KindDatabase:
		return "database"
	case KindNoResult:
		return "no result"
	default:
		return "unknown"
	}
}

// ErrNoResult matches any *Error of KindNoResult via errors.Is.
var ErrNoResult = errors.New("store: no result")

// Error is the typed failure returned by every store operation.
type Error struct {
	Op     string
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("store: %s: %s: %s", e.Op, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	return target == ErrNoResult && e.Kind == KindNoResult
}

func newError(op string, kind Kind, err error, format string, args ...any) *Error {
	detail := fmt.Sprintf(format, args...)
	if len(detail) > MaxErrorDetail {
		detail = message.Bound(detail, MaxErrorDetail)
	}
	return &Error{Op: op, Kind: kind, Detail: detail, Err: err}
}

// OrderLister is all the order server needs. A limit below 1 yields no rows.
type OrderLister interface {
	ListRecentOrderItems(ctx context.Context, limit int) ([]message.FullOrderItem, error)
}

// PriceLookup resolves the current price of an item.
type PriceLookup interface {
	ItemPrice(ctx context.Context, itemID int32) (int32, error)
}

// Tx is one open transaction. Exactly one of Commit or Rollback must be called.
type Tx interface {
	PriceLookup
	CreateOrder(ctx context.Context) (int32, error)
	AddOrderItem(ctx context.Context, orderID, itemID, quantity, price int32) error
	Commit() error
	Rollback() error
}

// Store is the full Order Store.
type Store interface {
	OrderLister
	PriceLookup
	BeginTx(ctx context.Context) (Tx, error)
	OrderItems(ctx context.Context, orderID int32) ([]message.OrderItem, error)
	Close() error
}
