package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// Strategy is a validated, reusable graph that turns an input into an
// output. workflow.Strategy is the canonical implementation.
type Strategy[I, O any] interface {
	Name() string
	// ValidateTools checks every static tool scope against reg.
	ValidateTools(reg *tools.Registry) error
	Execute(ctx context.Context, ac *Context, input I) (O, error)
}

type options struct {
	logger     *zap.Logger
	toolExec   *tools.Executor
	installers []func(*Pipeline) error
}

// Option configures an AIAgent.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithToolExecutor replaces the default tool executor.
func WithToolExecutor(e *tools.Executor) Option {
	return func(o *options) { o.toolExec = e }
}

// Use installs feature f into the pipeline of every run, configured by
// configure. Installation happens before the run starts; the pipeline is
// sealed afterwards.
func Use[C, S any](f Feature[C, S], configure func(*C)) Option {
	return func(o *options) {
		o.installers = append(o.installers, func(p *Pipeline) error {
			return Install(p, f, configure)
		})
	}
}

// AIAgent runs a strategy against a prompt executor and a tool registry.
// It is safe for concurrent use: every Run gets its own Context and
// Pipeline.
type AIAgent[I, O any] struct {
	strategy Strategy[I, O]
	executor llm.PromptExecutor
	registry *tools.Registry
	config   Config
	opts     options
	logger   *zap.Logger
}

// NewAIAgent 创建 Agent。registry 为 nil 时使用空注册表。
func NewAIAgent[I, O any](strategy Strategy[I, O], executor llm.PromptExecutor, registry *tools.Registry, cfg Config, opts ...Option) *AIAgent[I, O] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if registry == nil {
		registry = tools.EmptyRegistry()
	}
	cfg = cfg.withDefaults()
	return &AIAgent[I, O]{
		strategy: strategy,
		executor: executor,
		registry: registry,
		config:   cfg,
		opts:     o,
		logger:   o.logger.With(zap.String("component", "agent"), zap.String("agent_id", cfg.ID)),
	}
}

// ID returns the agent id.
func (a *AIAgent[I, O]) ID() string { return a.config.ID }

// Run executes the strategy once. It returns the Finish payload or exactly
// one *types.Error; foreign errors are wrapped as NODE_FAILED and context
// cancellation is reported as CANCELLED.
func (a *AIAgent[I, O]) Run(ctx context.Context, input I) (O, error) {
	var zero O
	runID := uuid.NewString()
	ctx = types.WithRunID(ctx, runID)
	if _, ok := types.TraceID(ctx); !ok {
		ctx = types.WithTraceID(ctx, runID)
	}
	logger := a.logger.With(zap.String("run_id", runID))
	start := time.Now()

	pipeline := NewPipeline(logger)
	for _, install := range a.opts.installers {
		if err := install(pipeline); err != nil {
			return zero, normalizeError(ctx, err)
		}
	}
	pipeline.Seal()

	if err := a.strategy.ValidateTools(a.registry); err != nil {
		return zero, normalizeError(ctx, err)
	}

	ac := NewContext(ContextParams{
		RunID:        runID,
		AgentID:      a.config.ID,
		Strategy:     a.strategy.Name(),
		Config:       a.config,
		Executor:     a.executor,
		Registry:     a.registry,
		Pipeline:     pipeline,
		ToolExecutor: a.opts.toolExec,
		Logger:       a.opts.logger,
	})
	info := ac.Info()
	name := a.strategy.Name()

	logger.Info("agent run started", zap.String("strategy", name))
	pipeline.AgentCreated(ctx, &AgentCreatedEvent{RunInfo: info, Strategy: name})
	pipeline.StrategyStarted(ctx, &StrategyStartedEvent{RunInfo: info, Strategy: name, Context: ac})

	result, err := a.strategy.Execute(ctx, ac, input)
	if err != nil {
		err = normalizeError(ctx, err)
		logger.Error("agent run failed",
			zap.String("strategy", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		pipeline.AgentRunError(ctx, &AgentRunErrorEvent{RunInfo: info, Strategy: name, Err: err})
		return zero, err
	}

	pipeline.StrategyFinished(ctx, &StrategyFinishedEvent{RunInfo: info, Strategy: name, Result: result})
	pipeline.AgentFinished(ctx, &AgentFinishedEvent{RunInfo: info, Strategy: name, Result: result})
	logger.Info("agent run finished", zap.String("strategy", name), zap.Duration("duration", time.Since(start)))
	return result, nil
}

// Run is a one-shot helper around NewAIAgent.
func Run[I, O any](ctx context.Context, strategy Strategy[I, O], registry *tools.Registry, input I, executor llm.PromptExecutor, cfg Config, opts ...Option) (O, error) {
	return NewAIAgent(strategy, executor, registry, cfg, opts...).Run(ctx, input)
}

func normalizeError(ctx context.Context, err error) error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
		return types.NewError(types.ErrCancelled, "run cancelled").WithCause(err)
	}
	return types.NewError(types.ErrNodeFailed, fmt.Sprintf("run failed: %v", err)).WithCause(err)
}
