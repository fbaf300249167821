// Package middleware wraps the dispatcher's routing function.
//
// A middleware may short-circuit with an ERROR response. The dispatcher closes the
// connection after any ERROR response, whichever layer produced it.
package middleware

import (
	"context"

	"order-shop/protocol"
)

type HandlerFunc func(ctx context.Context, req *protocol.Request) *protocol.Response

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one listed runs outermost:
// Chain(A, B, C)(h) == A(B(C(h))).
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
