package agent

import (
	"context"
	"encoding/json"
	"maps"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

type stage struct {
	name     string
	scope    tools.Scope
	features map[string]any
}

// Context is the per-run mutable aggregate handed to every node: the LLM
// state, typed storage, the pipeline and run metadata. A Context is owned by
// one goroutine; parallel branches work on forks.
type Context struct {
	runID    string
	agentID  string
	strategy string
	config   Config

	stage    *stage
	llm      *LLMContext
	storage  *Storage
	pipeline *Pipeline
	registry *tools.Registry
	toolExec *tools.Executor
	logger   *zap.Logger
}

// ContextParams configures NewContext. Nil collaborators get defaults: an
// empty registry, a sealed empty pipeline, a default tool executor.
type ContextParams struct {
	RunID        string
	AgentID      string
	Strategy     string
	Config       Config
	Executor     llm.PromptExecutor
	Registry     *tools.Registry
	Pipeline     *Pipeline
	ToolExecutor *tools.Executor
	Logger       *zap.Logger
}

// NewContext creates a run context. AIAgent.Run does this for every run;
// tests and embedders may call it directly.
func NewContext(p ContextParams) *Context {
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	if p.Registry == nil {
		p.Registry = tools.EmptyRegistry()
	}
	if p.Pipeline == nil {
		p.Pipeline = NewPipeline(p.Logger)
		p.Pipeline.Seal()
	}
	if p.ToolExecutor == nil {
		p.ToolExecutor = tools.NewExecutor(tools.WithExecutorLogger(p.Logger))
	}
	cfg := p.Config.withDefaults()

	c := &Context{
		runID:    p.RunID,
		agentID:  cfg.ID,
		strategy: p.Strategy,
		config:   cfg,
		stage:    &stage{name: p.Strategy, scope: tools.DynamicScope(), features: map[string]any{}},
		storage:  newStorage(),
		pipeline: p.Pipeline,
		registry: p.Registry,
		toolExec: p.ToolExecutor,
		logger:   p.Logger.With(zap.String("run_id", p.RunID)),
	}
	if p.AgentID != "" {
		c.agentID = p.AgentID
	}
	c.llm = &LLMContext{
		ac:       c,
		prompt:   cfg.Prompt.Clone(),
		model:    cfg.Model,
		tools:    p.Registry,
		dynamic:  true,
		executor: p.Executor,
	}
	return c
}

func (c *Context) RunID() string        { return c.runID }
func (c *Context) AgentID() string      { return c.agentID }
func (c *Context) StrategyName() string { return c.strategy }
func (c *Context) StageName() string    { return c.stage.name }
func (c *Context) Config() Config       { return c.config }
func (c *Context) LLM() *LLMContext     { return c.llm }
func (c *Context) Storage() *Storage    { return c.storage }
func (c *Context) Pipeline() *Pipeline  { return c.pipeline }
func (c *Context) Logger() *zap.Logger  { return c.logger }

// Registry returns the agent's full tool registry.
func (c *Context) Registry() *tools.Registry { return c.registry }

// Info returns the run identifiers used in events.
func (c *Context) Info() RunInfo {
	return RunInfo{RunID: c.runID, AgentID: c.agentID}
}

// Fork returns an independent copy for a parallel branch: storage and prompt
// are snapshotted, the pipeline, registry and executors are shared.
func (c *Context) Fork() *Context {
	f := *c
	f.storage = c.storage.snapshot()
	f.stage = &stage{name: c.stage.name, scope: c.stage.scope, features: maps.Clone(c.stage.features)}
	f.llm = c.llm.fork(&f)
	return &f
}

// Replace adopts other's storage and LLM state wholesale. Used by reduce to
// continue with exactly one branch context.
func (c *Context) Replace(other *Context) {
	if other == c {
		return
	}
	c.storage = other.storage
	c.llm.adopt(other.llm)
}

// EnterStage switches the stage name and tool scope. The returned function
// restores the previous stage; prompt changes made inside the stage persist.
func (c *Context) EnterStage(name string, scope tools.Scope) (restore func(), err error) {
	prevStage := c.stage
	prevTools, prevDynamic := c.llm.toolState()

	next := prevTools
	if scope.IsStatic() {
		next, err = scope.Resolve(c.registry)
		if err != nil {
			return nil, err
		}
	}
	c.stage = &stage{name: name, scope: scope, features: map[string]any{}}
	c.llm.setToolState(next, !scope.IsStatic())
	c.logger.Debug("stage entered", zap.String("stage", name), zap.String("scope", string(scope.Kind)))

	return func() {
		c.stage = prevStage
		c.llm.setToolState(prevTools, prevDynamic)
	}, nil
}

// ExecuteTool dispatches one call. See ExecuteTools.
func (c *Context) ExecuteTool(ctx context.Context, call types.ToolCall) (tools.Result, error) {
	results, err := c.ExecuteTools(ctx, []types.ToolCall{call}, false)
	if err != nil {
		return tools.Result{}, err
	}
	return results[0], nil
}

// ExecuteTools dispatches a batch of calls against the active tools, wrapped
// by the before/after tool-call events. Results keep call order. An unknown
// tool or invalid arguments fail the batch unless a feature recovers the
// dispatch error; errors returned by tool handlers become Tool-Result content.
// With parallel set, calls run concurrently and the first dispatch failure
// cancels the rest.
func (c *Context) ExecuteTools(ctx context.Context, calls []types.ToolCall, parallel bool) ([]tools.Result, error) {
	node, _ := types.NodeName(ctx)
	info := c.Info()
	if err := c.pipeline.BeforeToolCalls(ctx, &BeforeToolCallsEvent{RunInfo: info, Node: node, Calls: types.CloneToolCalls(calls)}); err != nil {
		return nil, err
	}

	reg := c.llm.ActiveTools()
	results := make([]tools.Result, len(calls))
	if parallel && len(calls) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for i := range calls {
			g.Go(func() error {
				r, err := c.dispatch(gctx, reg, node, calls[i])
				results[i] = r
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	} else {
		for i, call := range calls {
			r, err := c.dispatch(ctx, reg, node, call)
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
	}

	if err := c.pipeline.AfterToolCalls(ctx, &AfterToolCallsEvent{
		RunInfo: info,
		Node:    node,
		Calls:   types.CloneToolCalls(calls),
		Results: tools.CloneResults(results),
	}); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Context) dispatch(ctx context.Context, reg *tools.Registry, node string, call types.ToolCall) (tools.Result, error) {
	res, err := c.toolExec.Execute(ctx, reg, call)
	if err == nil {
		return res, nil
	}
	if !types.IsCode(err, types.ErrToolNotRegistered) && !types.IsCode(err, types.ErrToolArgsInvalid) {
		return res, err
	}

	rec, rerr := c.pipeline.ToolDispatchError(ctx, &ToolDispatchErrorEvent{RunInfo: c.Info(), Node: node, Call: call, Err: err})
	if rerr != nil {
		return res, rerr
	}
	if !rec.Handled {
		if e, ok := types.AsError(err); ok && node != "" {
			e.WithNode(node)
		}
		return res, err
	}

	c.logger.Info("tool dispatch error recovered", zap.String("tool", call.Name), zap.Error(err))
	out, merr := json.Marshal(rec.Output)
	if merr != nil {
		return res, types.NewError(types.ErrFeatureRejected, "recovery output is not serializable").WithTool(call.Name).WithCause(merr)
	}
	res.Output = out
	return res, nil
}
