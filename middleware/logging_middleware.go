package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"order-shop/protocol"
)

// LoggingMiddleware logs every dispatched request at debug level and every ERROR
// response at warn level.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *protocol.Request) *protocol.Response {
			start := time.Now()
			resp := next(ctx, req)
			fields := []zap.Field{
				zap.Stringer("request", req.Header.ID),
				zap.Stringer("response", resp.ID),
				zap.Int("payload_bytes", len(resp.Payload)),
				zap.Duration("duration", time.Since(start)),
			}
			if resp.IsError() {
				logger.Warn("request failed", append(fields, zap.String("message", protocol.DecodeErrorMessage(resp.Payload)))...)
			} else {
				logger.Debug("request served", fields...)
			}
			return resp
		}
	}
}
