package catalog

import (
	"context"
	"sync/atomic"
)

type budgetKey struct{}

type callBudget struct {
	remaining atomic.Int64
}

// WithCallBudget caps the number of upstream catalog calls made on behalf of
// ctx at n. Cross-catalog searches can otherwise fan out into one call per
// data source. n <= 0 leaves ctx unbounded.
func WithCallBudget(ctx context.Context, n int) context.Context {
	if n <= 0 {
		return ctx
	}
	b := &callBudget{}
	b.remaining.Store(int64(n))
	return context.WithValue(ctx, budgetKey{}, b)
}

// RemainingCalls reports the calls left on ctx's budget, or -1 when unbounded.
func RemainingCalls(ctx context.Context) int64 {
	b, ok := ctx.Value(budgetKey{}).(*callBudget)
	if !ok {
		return -1
	}
	if n := b.remaining.Load(); n > 0 {
		return n
	}
	return 0
}

func spendCall(ctx context.Context) error {
	b, ok := ctx.Value(budgetKey{}).(*callBudget)
	if !ok {
		return nil
	}
	if b.remaining.Add(-1) < 0 {
		return ErrBudgetExhausted
	}
	return nil
}
