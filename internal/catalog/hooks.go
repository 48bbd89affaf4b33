package catalog

import (
	"context"
	"time"
)

// queryHooks satisfies sqlhooks.Hooks, logging each statement and its
// elapsed time, the same pattern as the teacher repository's own
// internal/repository.Hooks.
type queryHooks struct {
	log func(string, ...interface{})
}

type beginKey struct{}

func (h *queryHooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if h.log != nil {
		h.log("catalog: query %s %v", query, args)
	}
	return context.WithValue(ctx, beginKey{}, time.Now()), nil
}

func (h *queryHooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey{}).(time.Time); ok && h.log != nil {
		h.log("catalog: took %s", time.Since(begin))
	}
	return ctx, nil
}
