package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"order-shop/protocol"
)

const MsgRateLimited = "Rate limit exceeded"

// RateLimitMiddleware admits r requests per second with the given burst, shared by
// all connections of the server.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			if !limiter.Allow() {
				return protocol.ErrorResponse(MsgRateLimited)
			}
			return next(ctx, req)
		}
	}
}
