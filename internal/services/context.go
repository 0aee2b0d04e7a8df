package services

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	userIDKey contextKey = "user_id"
	pageKey   contextKey = "page"
	chunkKey  contextKey = "chunk"
)

// WithRunID annotates context with the migration run identifier.
func WithRunID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext extracts the migration run identifier if present.
func RunIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(runIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithUserID annotates context with the profile user id being processed.
func WithUserID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, userIDKey, id)
}

// UserIDFromContext returns the profile user id if present.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(userIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithPage annotates context with the 1-based page number of the listing.
func WithPage(ctx context.Context, page int) context.Context {
	return context.WithValue(ctx, pageKey, page)
}

// PageFromContext returns the page number if present.
func PageFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(pageKey).(int)
	return v, ok
}

// WithChunk annotates context with the 0-based sync chunk index.
func WithChunk(ctx context.Context, chunk int) context.Context {
	return context.WithValue(ctx, chunkKey, chunk)
}

// ChunkFromContext returns the chunk index if present.
func ChunkFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(chunkKey).(int)
	return v, ok
}
