package workflow

import (
	"context"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/types"
)

// ForwardFunc maps a node output to the next node's input, or Absent when
// the edge does not apply.
type ForwardFunc[O, T any] func(ctx context.Context, ac *agent.Context, out O) types.Option[T]

// Forward is an edge under construction: a source node plus the composed
// forwarding function. Every combinator returns a new Forward; the receiver
// is never modified.
type Forward[O, T any] struct {
	from runnable
	fn   ForwardFunc[O, T]
}

// From starts an edge at n with the identity forwarding function.
func From[I, O any](n *Node[I, O]) *Forward[O, O] {
	return &Forward[O, O]{
		from: n,
		fn: func(_ context.Context, _ *agent.Context, out O) types.Option[O] {
			return types.Present(out)
		},
	}
}

// OnCondition keeps the payload only when pred holds. Absent passes through
// and pred is not called.
func (f *Forward[O, T]) OnCondition(pred func(ctx context.Context, ac *agent.Context, v T) bool) *Forward[O, T] {
	prev := f.fn
	return &Forward[O, T]{
		from: f.from,
		fn: func(ctx context.Context, ac *agent.Context, out O) types.Option[T] {
			return prev(ctx, ac, out).Filter(func(v T) bool { return pred(ctx, ac, v) })
		},
	}
}

// When is OnCondition for predicates that only look at the payload.
func (f *Forward[O, T]) When(pred func(v T) bool) *Forward[O, T] {
	return f.OnCondition(func(_ context.Context, _ *agent.Context, v T) bool { return pred(v) })
}

// Transformed maps a Present payload with fn, possibly changing its type.
func Transformed[O, T, U any](f *Forward[O, T], fn func(ctx context.Context, ac *agent.Context, v T) U) *Forward[O, U] {
	prev := f.fn
	return &Forward[O, U]{
		from: f.from,
		fn: func(ctx context.Context, ac *agent.Context, out O) types.Option[U] {
			return types.MapOption(prev(ctx, ac, out), func(v T) U { return fn(ctx, ac, v) })
		},
	}
}

// Map is Transformed for functions that only look at the payload.
func Map[O, T, U any](f *Forward[O, T], fn func(v T) U) *Forward[O, U] {
	return Transformed(f, func(_ context.Context, _ *agent.Context, v T) U { return fn(v) })
}

// FlatMap composes a partial transform: fn may itself reject the payload.
func FlatMap[O, T, U any](f *Forward[O, T], fn func(ctx context.Context, ac *agent.Context, v T) types.Option[U]) *Forward[O, U] {
	prev := f.fn
	return &Forward[O, U]{
		from: f.from,
		fn: func(ctx context.Context, ac *agent.Context, out O) types.Option[U] {
			return types.FlatMapOption(prev(ctx, ac, out), func(v T) types.Option[U] { return fn(ctx, ac, v) })
		},
	}
}

// Edge is a finished, type-erased edge between two nodes.
type Edge struct {
	from    runnable
	to      runnable
	forward func(ctx context.Context, ac *agent.Context, out any) (types.Option[any], error)
}

// To completes f with its target node.
func To[O, T, X any](f *Forward[O, T], target *Node[T, X]) Edge {
	fn := f.fn
	from := f.from
	return Edge{
		from: from,
		to:   target,
		forward: func(ctx context.Context, ac *agent.Context, out any) (types.Option[any], error) {
			typed, err := assertInput[O](from.nodeName(), out)
			if err != nil {
				return types.Absent[any](), err
			}
			return types.MapOption(fn(ctx, ac, typed), func(v T) any { return v }), nil
		},
	}
}

// Source returns the source node name.
func (e Edge) Source() string { return e.from.nodeName() }

// Target returns the target node name.
func (e Edge) Target() string { return e.to.nodeName() }
