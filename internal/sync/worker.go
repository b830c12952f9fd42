package sync

import (
	"context"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"watch-sync-service/internal/logger"
)

// runPass applies fn to every item with at most workers running at once.
// fn handles its own failures; one item never stops the pass.
func runPass[T any](ctx context.Context, workers int, items []T, fn func(context.Context, T)) {
	if len(items) == 0 {
		return
	}
	if workers <= 1 {
		for _, item := range items {
			fn(ctx, item)
		}
		return
	}

	p := pool.New().WithMaxGoroutines(workers)
	for _, item := range items {
		p.Go(func() { fn(ctx, item) })
	}
	p.Wait()
}

// accumulator collects counters and errors from concurrent workers.
type accumulator struct {
	mu     sync.Mutex
	result *Result
}

func (a *accumulator) add(fn func(r *Result)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.result)
}

func (a *accumulator) fail(verb, title string, err error) {
	msg := fmt.Sprintf("Failed to %s %s: %v", verb, title, err)
	logger.Log.Warn("Sync item failed", zap.String("op", verb), zap.String("title", title), zap.Error(err))
	a.add(func(r *Result) { r.Errors = append(r.Errors, msg) })
}
