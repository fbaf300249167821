package middleware

import (
	"context"
	"time"

	"order-shop/protocol"
)

const MsgTimeout = "Request timed out"

func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *protocol.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return protocol.ErrorResponse(MsgTimeout)
			}
		}
	}
}
