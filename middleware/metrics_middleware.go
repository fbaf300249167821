package middleware

import (
	"context"
	"time"

	"order-shop/metrics"
	"order-shop/protocol"
)

func MetricsMiddleware() Middleware {
	metrics.Register()
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			metrics.RecordRequest(req.Header.ID.String(), resp.ID.String(), time.Since(start))
			return resp
		}
	}
}
