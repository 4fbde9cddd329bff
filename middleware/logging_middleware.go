package middleware

import (
	"context"
	"jsonrpc-peer/message"
	"time"

	"github.com/rs/zerolog"
)

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			start := time.Now()
			resp := next(ctx, req)

			ev := logger.Info().
				Str("method", req.Method).
				Str("id", message.Key(req.ID)).
				Dur("duration", time.Since(start))
			switch {
			case resp == nil:
				ev = ev.Bool("deferred", true)
			case resp.Error != nil:
				ev = ev.Interface("error", resp.Error)
			}
			ev.Msg("handled")
			return resp
		}
	}
}
