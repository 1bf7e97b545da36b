package workflow

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

type strategyOptions struct {
	description string
	scope       tools.Scope
}

// StrategyOption configures a Strategy.
type StrategyOption func(*strategyOptions)

// WithDescription sets a human readable description.
func WithDescription(desc string) StrategyOption {
	return func(o *strategyOptions) { o.description = desc }
}

// WithToolScope restricts the strategy's tools. A static scope is checked
// against the agent's registry before the run starts.
func WithToolScope(scope tools.Scope) StrategyOption {
	return func(o *strategyOptions) { o.scope = scope }
}

// StrategyBuilder collects the edges of a strategy graph.
type StrategyBuilder[I, O any] struct {
	name   string
	opts   strategyOptions
	start  *Node[I, I]
	finish *Node[O, O]
	edges  []Edge
}

// NewStrategy 创建策略构建器。Start/Finish 节点由构建器持有。
func NewStrategy[I, O any](name string, opts ...StrategyOption) *StrategyBuilder[I, O] {
	o := strategyOptions{scope: tools.DynamicScope()}
	for _, opt := range opts {
		opt(&o)
	}
	return &StrategyBuilder[I, O]{
		name:   name,
		opts:   o,
		start:  newStart[I](),
		finish: newFinish[O](),
	}
}

// Start returns the identity entry node.
func (b *StrategyBuilder[I, O]) Start() *Node[I, I] { return b.start }

// Finish returns the terminal node; its input is the strategy result.
func (b *StrategyBuilder[I, O]) Finish() *Node[O, O] { return b.finish }

// AddEdge appends edges. Edges leaving the same node are tried in the order
// they are added.
func (b *StrategyBuilder[I, O]) AddEdge(edges ...Edge) *StrategyBuilder[I, O] {
	b.edges = append(b.edges, edges...)
	return b
}

// Build validates the graph and returns the immutable strategy.
func (b *StrategyBuilder[I, O]) Build() (*Strategy[I, O], error) {
	s := &Strategy[I, O]{
		name:        b.name,
		description: b.opts.description,
		scope:       b.opts.scope,
		start:       b.start,
		finish:      b.finish,
		nodes:       map[string]runnable{},
		edges:       map[string][]Edge{},
	}
	if s.scope.IsStatic() && len(s.scope.Names) == 0 {
		return nil, types.NewError(types.ErrEmptyToolSet,
			fmt.Sprintf("strategy %q declares an empty static tool scope", b.name))
	}
	if err := s.addNode(b.start); err != nil {
		return nil, err
	}
	if err := s.addNode(b.finish); err != nil {
		return nil, err
	}

	for i, e := range b.edges {
		if e.from == nil || e.to == nil || e.forward == nil {
			return nil, types.NewError(types.ErrGraphInvalid, fmt.Sprintf("edge %d is incomplete", i))
		}
		if err := s.addNode(e.from); err != nil {
			return nil, err
		}
		if err := s.addNode(e.to); err != nil {
			return nil, err
		}
		if e.from == runnable(b.finish) {
			return nil, types.NewError(types.ErrGraphInvalid, "finish node cannot have outgoing edges").
				WithNode(FinishNodeName)
		}
		s.edges[e.from.nodeName()] = append(s.edges[e.from.nodeName()], e)
	}

	if !s.reachable(StartNodeName)[FinishNodeName] {
		return nil, types.NewError(types.ErrGraphInvalid,
			fmt.Sprintf("strategy %q: finish is not reachable from start", b.name))
	}
	return s, nil
}

// MustBuild is Build that panics on error. Intended for package-level
// strategy definitions.
func (b *StrategyBuilder[I, O]) MustBuild() *Strategy[I, O] {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}

// Strategy is a validated graph with one Start and a reachable Finish. It
// holds no run state and may be shared by concurrent runs.
type Strategy[I, O any] struct {
	name        string
	description string
	scope       tools.Scope
	start       runnable
	finish      runnable
	nodes       map[string]runnable
	order       []string
	edges       map[string][]Edge
}

var _ agent.Strategy[string, string] = (*Strategy[string, string])(nil)

func (s *Strategy[I, O]) addNode(n runnable) error {
	name := n.nodeName()
	if existing, ok := s.nodes[name]; ok {
		if existing != n {
			return types.NewError(types.ErrDuplicateNode,
				fmt.Sprintf("strategy %q has two nodes named %q", s.name, name)).WithNode(name)
		}
		return nil
	}
	s.nodes[name] = n
	s.order = append(s.order, name)
	return nil
}

func (s *Strategy[I, O]) reachable(from string) map[string]bool {
	seen := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.edges[cur] {
			next := e.to.nodeName()
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}

func (s *Strategy[I, O]) Name() string        { return s.name }
func (s *Strategy[I, O]) Description() string { return s.description }
func (s *Strategy[I, O]) Scope() tools.Scope  { return s.scope }

// Nodes returns node names in the order they were first declared.
func (s *Strategy[I, O]) Nodes() []string { return slices.Clone(s.order) }

// Successors returns the targets of node's edges in evaluation order.
func (s *Strategy[I, O]) Successors(node string) []string {
	out := make([]string, 0, len(s.edges[node]))
	for _, e := range s.edges[node] {
		out = append(out, e.Target())
	}
	return out
}

// ValidateTools checks the strategy's static scope and that of every nested
// subgraph against reg.
func (s *Strategy[I, O]) ValidateTools(reg *tools.Registry) error {
	if s.scope.IsStatic() {
		if _, err := s.scope.Resolve(reg); err != nil {
			return err
		}
	}
	for _, name := range s.order {
		if err := s.nodes[name].validateTools(reg); err != nil {
			return err
		}
	}
	return nil
}

// Execute runs the graph from Start with input until Finish is reached.
func (s *Strategy[I, O]) Execute(ctx context.Context, ac *agent.Context, input I) (O, error) {
	var zero O
	if s.scope.IsStatic() {
		restore, err := ac.EnterStage(s.name, s.scope)
		if err != nil {
			return zero, err
		}
		defer restore()
	}
	out, err := s.traverse(types.WithStageName(ctx, ac.StageName()), ac, input)
	if err != nil {
		return zero, err
	}
	return assertInput[O](FinishNodeName, out)
}

// traverse walks the graph. Edges of the current node are evaluated in
// declaration order and the first Present result wins.
func (s *Strategy[I, O]) traverse(ctx context.Context, ac *agent.Context, input any) (any, error) {
	logger := ac.Logger().With(zap.String("component", "strategy"), zap.String("strategy", s.name))
	p := ac.Pipeline()

	current, in := s.start, input
	steps := 0
	for {
		name := current.nodeName()
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.ErrCancelled, "run cancelled").WithNode(name).WithCause(err)
		}
		nctx := types.WithNodeName(ctx, name)

		out, err := executeNode(nctx, ac, logger, current, in)
		if err != nil {
			return nil, err
		}
		steps++
		if current == s.finish {
			logger.Debug("strategy finished", zap.Int("steps", steps))
			return out, nil
		}

		next, nextIn, err := s.selectEdge(nctx, ac, name, out)
		if err != nil {
			return nil, err
		}
		if next == nil {
			deadEnd := types.NewError(types.ErrDeadEnd,
				fmt.Sprintf("no edge matches the output of node %q", name)).WithNode(name)
			rec, rerr := p.NodeError(nctx, &agent.NodeErrorEvent{
				RunInfo: ac.Info(), Node: name, Input: in, Output: out,
				Err: deadEnd, DeadEnd: true, Context: ac,
			})
			if rerr != nil {
				return nil, rerr
			}
			if !rec.Handled {
				logger.Error("dead end", zap.String("node", name))
				return nil, deadEnd
			}
			logger.Info("dead end recovered", zap.String("node", name))
			return rec.Output, nil
		}

		logger.Debug("node transition", zap.String("from", name), zap.String("to", next.nodeName()))
		current, in = next, nextIn
	}
}

func (s *Strategy[I, O]) selectEdge(ctx context.Context, ac *agent.Context, node string, out any) (runnable, any, error) {
	for _, e := range s.edges[node] {
		opt, err := e.forward(ctx, ac, out)
		if err != nil {
			return nil, nil, err
		}
		if v, ok := opt.Get(); ok {
			return e.to, v, nil
		}
	}
	return nil, nil, nil
}

// executeNode runs n wrapped by the node events. A failure recovered by a
// feature replaces the output.
func executeNode(ctx context.Context, ac *agent.Context, logger *zap.Logger, n runnable, in any) (any, error) {
	name := n.nodeName()
	p := ac.Pipeline()
	info := ac.Info()

	if err := p.BeforeNode(ctx, &agent.BeforeNodeEvent{RunInfo: info, Node: name, Input: in, Context: ac}); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := n.run(ctx, ac, in)
	if err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return nil, types.NewError(types.ErrCancelled, "run cancelled").WithNode(name).WithCause(err)
		}
		rec, rerr := p.NodeError(ctx, &agent.NodeErrorEvent{
			RunInfo: info, Node: name, Input: in, Output: out, Err: err, Context: ac,
		})
		if rerr != nil {
			return nil, rerr
		}
		if !rec.Handled {
			logger.Error("node execution failed",
				zap.String("node", name),
				zap.Duration("duration", time.Since(start)),
				zap.Error(err),
			)
			return nil, nodeError(name, err)
		}
		logger.Info("node failure recovered", zap.String("node", name), zap.Error(err))
		out = rec.Output
	}

	if err := p.AfterNode(ctx, &agent.AfterNodeEvent{RunInfo: info, Node: name, Input: in, Output: out, Context: ac}); err != nil {
		return nil, err
	}
	return out, nil
}

// nodeError attributes err to node. Typed errors keep their code and the
// innermost node name.
func nodeError(node string, err error) error {
	if e, ok := types.AsError(err); ok {
		if e.Node == "" {
			e.WithNode(node)
		}
		return err
	}
	return types.NewError(types.ErrNodeFailed, "node execution failed").WithNode(node).WithCause(err)
}
