package domain

import "context"

type runIDKey struct{}

// ContextWithRunID tags ctx with the id of the day run it belongs to, so
// provider calls made deep in the pipeline can be attributed to it.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func RunIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
