// Package requestctx carries per-request identifiers through context.Context.
package requestctx

import (
	"context"
	"log/slog"
)

type contextKey string

// HeaderRequestID is the header used to accept and echo request IDs.
const HeaderRequestID = "X-Request-ID"

var requestIDKey contextKey = "analyze-relay/request-id"

// WithRequestID embeds the request ID into the parent context.
func WithRequestID(parent context.Context, id string) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, requestIDKey, id)
}

// RequestID retrieves the request ID if present.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// Logger returns logger annotated with the request ID from ctx.
func Logger(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return logger.With(slog.String("request_id", id))
	}
	return logger
}
