package core

import "context"

type ctxKey string

const (
	CtxKeyExecutorId ctxKey = ctxKey("executorId")
	CtxKeyUsername   ctxKey = ctxKey("username")
	CtxKeyJobID      ctxKey = ctxKey("jobId")
)

// WithUsername returns a context carrying the acting user's name.
func WithUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, CtxKeyUsername, username)
}

// UsernameFrom returns the acting user's name, or "" when none is set.
func UsernameFrom(ctx context.Context) string {
	v, _ := ctx.Value(CtxKeyUsername).(string)
	return v
}

func WithJobID(ctx context.Context, id int64) context.Context {
	return context.WithValue(ctx, CtxKeyJobID, id)
}

func JobIDFrom(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(CtxKeyJobID).(int64)
	return v, ok
}
