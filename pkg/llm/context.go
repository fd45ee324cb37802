package llm

import "context"

type contextKey string

const (
	// DebugDirContextKey groups the debug chunk dumps of one request under a
	// shared directory name.
	DebugDirContextKey contextKey = "llm_debug_dir"
	// ThreadIDContextKey carries the caller supplied conversation thread id.
	ThreadIDContextKey contextKey = "thread_id"
)

// WithThreadID returns a context carrying the thread id for downstream
// correlation (logging, debug dumps).
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ThreadIDContextKey, threadID)
}

// ThreadIDFromContext extracts the thread id, or "" when absent.
func ThreadIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ThreadIDContextKey).(string)
	return id
}

// WithDebugID returns a context whose debug dumps are nested under id.
func WithDebugID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, DebugDirContextKey, id)
}

// DebugIDFromContext extracts the debug id, or "" when absent.
func DebugIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(DebugDirContextKey).(string)
	return id
}
