package middleware

import (
	"context"
	"jsonrpc-peer/message"
	"time"
)

// TimeOutMiddleware answers with an error if the handler takes longer than
// timeout. The handler keeps running with a cancelled ctx; its late result is
// dropped.
func TimeOutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Response {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan *message.Response, 1)
			go func() {
				done <- next(ctx, req)
			}()

			select {
			case resp := <-done:
				return resp
			case <-ctx.Done():
				return message.NewResponse(nil, req.ID, "request timed out")
			}
		}
	}
}
