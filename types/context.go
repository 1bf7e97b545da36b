package types

import "context"

// contextKey is used for storing values in context.Context.
type contextKey string

const (
	keyTraceID   contextKey = "trace_id"
	keyRunID     contextKey = "run_id"
	keyStageName contextKey = "stage_name"
	keyNodeName  contextKey = "node_name"
)

// WithTraceID adds trace ID to context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, keyTraceID, traceID)
}

// TraceID extracts trace ID from context.
func TraceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyTraceID).(string)
	return v, ok && v != ""
}

// WithRunID adds run ID to context.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, keyRunID, runID)
}

// RunID extracts run ID from context.
func RunID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyRunID).(string)
	return v, ok && v != ""
}

// WithStageName adds the current stage name to context.
func WithStageName(ctx context.Context, stage string) context.Context {
	return context.WithValue(ctx, keyStageName, stage)
}

// StageName extracts the stage name from context.
func StageName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyStageName).(string)
	return v, ok && v != ""
}

// WithNodeName adds the executing node name to context.
func WithNodeName(ctx context.Context, node string) context.Context {
	return context.WithValue(ctx, keyNodeName, node)
}

// NodeName extracts the executing node name from context.
func NodeName(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(keyNodeName).(string)
	return v, ok && v != ""
}
