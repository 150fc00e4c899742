package correlation

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// runKey is an unexported type for context keys within this package.
type runKey struct{}

// RunIDFromContext fetches the run id from the context if present.
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if val, ok := ctx.Value(runKey{}).(string); ok {
		return val
	}
	return ""
}

// ContextWithRunID sets the run id onto the context.
func ContextWithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runKey{}, id)
}

// EnsureRunID guarantees a run id on the context, generating one from node when missing.
func EnsureRunID(ctx context.Context, node *snowflake.Node) (context.Context, string) {
	id := RunIDFromContext(ctx)
	if id == "" && node != nil {
		id = node.Generate().String()
	}
	return ContextWithRunID(ctx, id), id
}
