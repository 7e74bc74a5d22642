// Package fallback runs an ordered list of increasingly simple strategies
// until one of them succeeds. It replaces nested try/recover chains with a
// declarative list that can be tested one tier at a time.
package fallback

import (
	"context"
	"errors"
	"fmt"

	"factmill/manager-go/internal/utils"
)

// Strategy is one tier in a fallback chain.
type Strategy[T any] struct {
	Name string
	// Degraded marks tiers whose output is a stand-in rather than the real
	// artifact (e.g. a solid-color placeholder video). The caller decides
	// whether degraded output is acceptable to publish.
	Degraded bool
	Attempt  func(ctx context.Context) (T, error)
}

// Outcome reports which tier produced the value.
type Outcome[T any] struct {
	Value    T
	Tier     string
	Index    int
	Degraded bool
}

var ErrNoStrategies = errors.New("fallback: no strategies configured")

// Run tries each strategy in order and returns the first success. Tier
// failures are logged, collected, and only surfaced if every tier fails.
func Run[T any](ctx context.Context, strategies []Strategy[T]) (Outcome[T], error) {
	if len(strategies) == 0 {
		return Outcome[T]{}, ErrNoStrategies
	}

	var failures []error
	for i, s := range strategies {
		if err := ctx.Err(); err != nil {
			return Outcome[T]{}, err
		}
		value, err := s.Attempt(ctx)
		if err == nil {
			if i > 0 || s.Degraded {
				utils.Warn("fallback tier used", "tier", s.Name, "index", i, "degraded", s.Degraded)
			}
			return Outcome[T]{Value: value, Tier: s.Name, Index: i, Degraded: s.Degraded}, nil
		}
		utils.Warn("fallback tier failed", "tier", s.Name, "index", i, "err", err)
		failures = append(failures, fmt.Errorf("%s: %w", s.Name, err))
	}
	return Outcome[T]{}, fmt.Errorf("all %d fallback tiers failed: %w", len(strategies), errors.Join(failures...))
}
