package ledger

import "context"

type correlationKey struct{}

// WithCorrelationID returns a copy of ctx carrying the request correlation id,
// which is copied onto every event emitted while serving that request
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFrom returns the correlation id carried by ctx, or ""
func CorrelationIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}
