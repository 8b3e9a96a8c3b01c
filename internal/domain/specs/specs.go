package specs

import (
	"context"
)

// Specification is a composable predicate over domain values. Evaluation
// stops early once ctx is done, so a cancelled filter matches nothing.
type Specification[T any] interface {
	IsSatisfiedBy(ctx context.Context, v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

type specFunc[T any] func(ctx context.Context, v T) bool

func (f specFunc[T]) IsSatisfiedBy(ctx context.Context, v T) bool {
	if ctx.Err() != nil {
		return false
	}
	return f(ctx, v)
}

func (f specFunc[T]) And(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		return f.IsSatisfiedBy(ctx, v) && other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Or(other Specification[T]) Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		return f.IsSatisfiedBy(ctx, v) || other.IsSatisfiedBy(ctx, v)
	})
}

func (f specFunc[T]) Not() Specification[T] {
	return specFunc[T](func(ctx context.Context, v T) bool {
		if ctx.Err() != nil {
			return false
		}
		return !f(ctx, v)
	})
}

// New constructs a Specification from a predicate.
func New[T any](fn func(ctx context.Context, v T) bool) Specification[T] { return specFunc[T](fn) }

// Partition splits vs into the values that satisfy s and the rest, keeping
// order.
func Partition[T any](ctx context.Context, s Specification[T], vs []T) (match, rest []T) {
	for _, v := range vs {
		if s.IsSatisfiedBy(ctx, v) {
			match = append(match, v)
		} else {
			rest = append(rest, v)
		}
	}
	return match, rest
}
