package middleware

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"order-shop/protocol"
)

// RecoveryMiddleware turns a handler panic into an opaque ERROR response. The panic
// value is logged, never sent to the peer.
func RecoveryMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) (resp *protocol.Response) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("handler panic",
						zap.Stringer("request", req.Header.ID),
						zap.String("panic", fmt.Sprint(r)),
						zap.Stack("stack"))
					resp = protocol.ErrorResponse(protocol.MsgInternal)
				}
			}()
			return next(ctx, req)
		}
	}
}
