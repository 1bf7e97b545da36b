package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// FailurePolicy decides what happens when a parallel branch fails.
type FailurePolicy int

const (
	// FailFast 首个分支失败即取消其余分支
	FailFast FailurePolicy = iota
	// CollectAll 等待所有分支结束，汇总全部错误
	CollectAll
)

func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail_fast"
	case CollectAll:
		return "collect_all"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

// BranchResult is the outcome of one parallel branch.
type BranchResult[O any] struct {
	NodeName string
	// Context is the branch's forked context.
	Context *agent.Context
	Output  O
}

// Reduced is what a reducer returns: the output and exactly one branch
// context to continue with.
type Reduced[R any] struct {
	Output  R
	Context *agent.Context
}

// Reducer collapses branch results. Results are in branch declaration order.
type Reducer[O, R any] func(ctx context.Context, ac *agent.Context, results []BranchResult[O]) (Reduced[R], error)

type parallelOptions struct {
	policy FailurePolicy
	limit  int
}

// ParallelOption configures NewParallel.
type ParallelOption func(*parallelOptions)

// WithFailurePolicy sets the branch failure policy. The default is FailFast.
func WithFailurePolicy(p FailurePolicy) ParallelOption {
	return func(o *parallelOptions) { o.policy = p }
}

// WithMaxConcurrency bounds how many branches run at once. Zero means
// unbounded.
func WithMaxConcurrency(n int) ParallelOption {
	return func(o *parallelOptions) { o.limit = n }
}

// NewParallel returns a node that runs every branch on the same input, each
// with its own Fork of the context, waits for all of them and hands the
// results to reduce. The context chosen by reduce replaces the caller's.
//
// Branch names must be unique and reduce must be set; both are checked
// with the strategy's tools before the run starts.
func NewParallel[I, O, R any](name string, branches []*Node[I, O], reduce Reducer[O, R], opts ...ParallelOption) *Node[I, R] {
	o := parallelOptions{policy: FailFast}
	for _, opt := range opts {
		opt(&o)
	}
	branches = slices.Clone(branches)

	n := NewNode(name, func(ctx context.Context, ac *agent.Context, in I) (R, error) {
		var zero R
		logger := ac.Logger().With(zap.String("component", "parallel"), zap.String("node", name))

		results, err := runBranches(ctx, ac, logger, branches, in, o)
		if err != nil {
			return zero, err
		}
		red, err := reduce(ctx, ac, results)
		if err != nil {
			return zero, err
		}
		if red.Context == nil {
			return zero, types.NewError(types.ErrReduceContextMissing, "reduce did not select a context").WithNode(name)
		}
		if !slices.ContainsFunc(results, func(r BranchResult[O]) bool { return r.Context == red.Context }) {
			return zero, types.NewError(types.ErrReduceContextMissing,
				"reduce selected a context that is not a branch context").WithNode(name)
		}
		ac.Replace(red.Context)
		return red.Output, nil
	})
	n.validate = func(reg *tools.Registry) error {
		if len(branches) == 0 {
			return types.NewError(types.ErrGraphInvalid, "parallel node has no branches").WithNode(name)
		}
		if reduce == nil {
			return types.NewError(types.ErrReduceContextMissing, "parallel node has no reducer").WithNode(name)
		}
		seen := make(map[string]bool, len(branches))
		for _, b := range branches {
			if seen[b.name] {
				return types.NewError(types.ErrDuplicateNode,
					fmt.Sprintf("parallel node %q has two branches named %q", name, b.name)).WithNode(b.name)
			}
			seen[b.name] = true
			if err := b.validateTools(reg); err != nil {
				return err
			}
		}
		return nil
	}
	return n
}

func runBranches[I, O any](ctx context.Context, ac *agent.Context, logger *zap.Logger, branches []*Node[I, O], in I, o parallelOptions) ([]BranchResult[O], error) {
	results := make([]BranchResult[O], len(branches))
	errs := make([]error, len(branches))

	var g *errgroup.Group
	gctx := ctx
	if o.policy == FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}

	for i, b := range branches {
		fork := ac.Fork()
		results[i] = BranchResult[O]{NodeName: b.name, Context: fork}
		g.Go(func() error {
			bctx := types.WithNodeName(gctx, b.name)
			raw, err := executeNode(bctx, fork, logger, b, in)
			if err == nil {
				results[i].Output, err = assertInput[O](b.name, raw)
			}
			if err == nil {
				return nil
			}
			if o.policy == CollectAll {
				errs[i] = err
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := errors.Join(errs...); err != nil {
		return nil, types.NewError(types.ErrNodeFailed, "parallel branches failed").WithCause(err)
	}
	logger.Debug("parallel branches finished", zap.Int("branches", len(branches)))
	return results, nil
}

// =============================================================================
// 🧩 Reducers
// =============================================================================

// SelectContextOf continues with branch i: its output and its context.
func SelectContextOf[O any](i int) Reducer[O, O] {
	return func(_ context.Context, _ *agent.Context, results []BranchResult[O]) (Reduced[O], error) {
		if i < 0 || i >= len(results) {
			return Reduced[O]{}, types.NewError(types.ErrReduceContextMissing,
				fmt.Sprintf("branch index %d out of range [0,%d)", i, len(results)))
		}
		return Reduced[O]{Output: results[i].Output, Context: results[i].Context}, nil
	}
}

// ReduceFirst continues with the first declared branch.
func ReduceFirst[O any]() Reducer[O, O] {
	return SelectContextOf[O](0)
}

// SelectBy continues with the first branch whose output satisfies pred.
func SelectBy[O any](pred func(O) bool) Reducer[O, O] {
	return func(_ context.Context, _ *agent.Context, results []BranchResult[O]) (Reduced[O], error) {
		for _, r := range results {
			if pred(r.Output) {
				return Reduced[O]{Output: r.Output, Context: r.Context}, nil
			}
		}
		return Reduced[O]{}, types.NewError(types.ErrReduceContextMissing, "no branch output matched")
	}
}

// ReduceFunc folds all outputs with fn and continues with the context of
// branch contextOf.
func ReduceFunc[O, R any](contextOf int, fn func(outputs []O) R) Reducer[O, R] {
	return func(_ context.Context, _ *agent.Context, results []BranchResult[O]) (Reduced[R], error) {
		if contextOf < 0 || contextOf >= len(results) {
			return Reduced[R]{}, types.NewError(types.ErrReduceContextMissing,
				fmt.Sprintf("branch index %d out of range [0,%d)", contextOf, len(results)))
		}
		outputs := make([]O, len(results))
		for i, r := range results {
			outputs[i] = r.Output
		}
		return Reduced[R]{Output: fn(outputs), Context: results[contextOf].Context}, nil
	}
}
