package catalog

import (
	"context"
	"log/slog"
)

// strategy is one way of answering a lookup. ok reports whether it produced
// a usable result.
type strategy[T any] struct {
	name string
	run  func(ctx context.Context) (result T, ok bool)
}

// firstOf runs strategies in order and returns the first usable result.
// Later strategies are never consulted once one succeeds.
func firstOf[T any](ctx context.Context, lookup string, strategies ...strategy[T]) (T, bool) {
	for i, s := range strategies {
		if ctx.Err() != nil {
			break
		}
		slog.Debug("catalog: resolver attempt", "lookup", lookup, "step", i+1, "strategy", s.name)
		if v, ok := s.run(ctx); ok {
			slog.Info("catalog: resolved", "lookup", lookup, "strategy", s.name)
			return v, true
		}
	}
	var zero T
	return zero, false
}
