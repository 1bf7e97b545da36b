package agent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/types"
)

// FeatureKey identifies a feature and the type of its pipeline-owned state.
type FeatureKey[S any] struct {
	name string
}

// NewFeatureKey creates a feature key.
func NewFeatureKey[S any](name string) FeatureKey[S] {
	return FeatureKey[S]{name: name}
}

func (k FeatureKey[S]) Name() string { return k.name }

// Feature is a pluggable interceptor bundle. C is the configuration type the
// user edits before installation, S the private state the pipeline owns for
// the lifetime of one run.
type Feature[C, S any] interface {
	Key() FeatureKey[S]
	NewConfig() *C
	NewState(cfg *C) (*S, error)
	Install(cfg *C, ic *Interceptor[S])
}

type handler[E any] struct {
	feature string
	fn      func(context.Context, *E) error
}

type recoverer[E any] struct {
	feature string
	fn      func(context.Context, *E) (Recovery, error)
}

type stageFactory func(ctx context.Context, stage string) (any, error)

// Pipeline dispatches lifecycle events to installed features. Features are
// installed before the run starts; Seal freezes the handler set, after which
// dispatch needs no locking.
//
// Handlers of one event run in registration order. The pipeline does not
// serialize concurrent dispatch from parallel branches: features that mutate
// their state from node or tool events guard it themselves.
type Pipeline struct {
	logger *zap.Logger

	mu     sync.Mutex
	sealed bool
	states map[string]any
	order  []string

	agentCreated      []handler[AgentCreatedEvent]
	strategyStarted   []handler[StrategyStartedEvent]
	strategyFinished  []handler[StrategyFinishedEvent]
	agentFinished     []handler[AgentFinishedEvent]
	agentRunError     []handler[AgentRunErrorEvent]
	beforeLLM         []handler[BeforeLLMCallEvent]
	afterLLM          []handler[AfterLLMCallEvent]
	beforeLLMTools    []handler[BeforeLLMCallEvent]
	afterLLMTools     []handler[AfterLLMCallEvent]
	beforeToolCalls   []handler[BeforeToolCallsEvent]
	afterToolCalls    []handler[AfterToolCallsEvent]
	toolDispatchError []recoverer[ToolDispatchErrorEvent]
	beforeNode        []handler[BeforeNodeEvent]
	afterNode         []handler[AfterNodeEvent]
	nodeError         []recoverer[NodeErrorEvent]
	stageFactories    map[string]stageFactory
}

// NewPipeline creates an empty pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		logger:         logger.With(zap.String("component", "pipeline")),
		states:         make(map[string]any),
		stageFactories: make(map[string]stageFactory),
	}
}

// Install configures f and registers its handlers. It fails once the
// pipeline is sealed or when a feature with the same key is installed.
func Install[C, S any](p *Pipeline, f Feature[C, S], configure func(*C)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	name := f.Key().Name()
	if p.sealed {
		return types.NewError(types.ErrPipelineSealed, fmt.Sprintf("cannot install feature %s after the run started", name))
	}
	if _, dup := p.states[name]; dup {
		return types.NewError(types.ErrFeatureDuplicate, fmt.Sprintf("feature %s already installed", name))
	}

	cfg := f.NewConfig()
	if configure != nil {
		configure(cfg)
	}
	state, err := f.NewState(cfg)
	if err != nil {
		return types.NewError(types.ErrFeatureInvalid, fmt.Sprintf("feature %s", name)).WithCause(err)
	}
	p.states[name] = state
	p.order = append(p.order, name)

	f.Install(cfg, &Interceptor[S]{p: p, feature: name, state: state})
	p.logger.Debug("feature installed", zap.String("feature", name))
	return nil
}

// FeatureState returns the state of an installed feature.
func FeatureState[S any](p *Pipeline, key FeatureKey[S]) (*S, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.states[key.name].(*S)
	return s, ok
}

// Features returns installed feature names in installation order.
func (p *Pipeline) Features() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.order...)
}

// Seal freezes the pipeline.
func (p *Pipeline) Seal() {
	p.mu.Lock()
	p.sealed = true
	p.mu.Unlock()
}

func (p *Pipeline) Sealed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sealed
}

// ====== 事件分发 ======

func (p *Pipeline) AgentCreated(ctx context.Context, e *AgentCreatedEvent) {
	fireSafe(ctx, p, EventAgentCreated, p.agentCreated, e)
}

func (p *Pipeline) StrategyStarted(ctx context.Context, e *StrategyStartedEvent) {
	fireSafe(ctx, p, EventStrategyStarted, p.strategyStarted, e)
}

func (p *Pipeline) StrategyFinished(ctx context.Context, e *StrategyFinishedEvent) {
	fireSafe(ctx, p, EventStrategyFinished, p.strategyFinished, e)
}

func (p *Pipeline) AgentFinished(ctx context.Context, e *AgentFinishedEvent) {
	fireSafe(ctx, p, EventAgentFinished, p.agentFinished, e)
}

func (p *Pipeline) AgentRunError(ctx context.Context, e *AgentRunErrorEvent) {
	fireSafe(ctx, p, EventAgentRunError, p.agentRunError, e)
}

func (p *Pipeline) BeforeLLMCall(ctx context.Context, e *BeforeLLMCallEvent) error {
	return fire(ctx, EventBeforeLLMCall, p.beforeLLM, e)
}

func (p *Pipeline) AfterLLMCall(ctx context.Context, e *AfterLLMCallEvent) error {
	return fire(ctx, EventAfterLLMCall, p.afterLLM, e)
}

func (p *Pipeline) BeforeLLMCallWithTools(ctx context.Context, e *BeforeLLMCallEvent) error {
	return fire(ctx, EventBeforeLLMCallWithTools, p.beforeLLMTools, e)
}

func (p *Pipeline) AfterLLMCallWithTools(ctx context.Context, e *AfterLLMCallEvent) error {
	return fire(ctx, EventAfterLLMCallWithTools, p.afterLLMTools, e)
}

func (p *Pipeline) BeforeToolCalls(ctx context.Context, e *BeforeToolCallsEvent) error {
	return fire(ctx, EventBeforeToolCalls, p.beforeToolCalls, e)
}

func (p *Pipeline) AfterToolCalls(ctx context.Context, e *AfterToolCallsEvent) error {
	return fire(ctx, EventAfterToolCalls, p.afterToolCalls, e)
}

// ToolDispatchError asks features to recover a dispatch failure. The first
// handled Recovery wins.
func (p *Pipeline) ToolDispatchError(ctx context.Context, e *ToolDispatchErrorEvent) (Recovery, error) {
	return recoverWith(ctx, EventToolDispatchError, p.toolDispatchError, e)
}

func (p *Pipeline) BeforeNode(ctx context.Context, e *BeforeNodeEvent) error {
	return fire(ctx, EventBeforeNode, p.beforeNode, e)
}

func (p *Pipeline) AfterNode(ctx context.Context, e *AfterNodeEvent) error {
	return fire(ctx, EventAfterNode, p.afterNode, e)
}

// NodeError asks features to recover a node failure or dead end.
func (p *Pipeline) NodeError(ctx context.Context, e *NodeErrorEvent) (Recovery, error) {
	return recoverWith(ctx, EventNodeError, p.nodeError, e)
}

// fireSafe 用于通知类事件：处理器错误或 panic 只记录日志，不中断运行
func fireSafe[E any](ctx context.Context, p *Pipeline, event EventType, hs []handler[E], e *E) {
	for _, h := range hs {
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("feature handler panicked",
						zap.String("feature", h.feature),
						zap.String("event", string(event)),
						zap.Any("panic", r))
				}
			}()
			if err := h.fn(ctx, e); err != nil {
				p.logger.Warn("feature handler failed",
					zap.String("feature", h.feature),
					zap.String("event", string(event)),
					zap.Error(err))
			}
		}()
	}
}

func fire[E any](ctx context.Context, event EventType, hs []handler[E], e *E) error {
	for _, h := range hs {
		if err := h.fn(ctx, e); err != nil {
			return rejection(h.feature, event, err)
		}
	}
	return nil
}

func recoverWith[E any](ctx context.Context, event EventType, rs []recoverer[E], e *E) (Recovery, error) {
	for _, r := range rs {
		rec, err := r.fn(ctx, e)
		if err != nil {
			return Recovery{}, rejection(r.feature, event, err)
		}
		if rec.Handled {
			return rec, nil
		}
	}
	return Recovery{}, nil
}

// rejection keeps typed errors raised by features and wraps anything else.
func rejection(feature string, event EventType, err error) error {
	if _, ok := types.AsError(err); ok {
		return err
	}
	return types.NewError(types.ErrFeatureRejected, fmt.Sprintf("feature %s rejected %s", feature, event)).WithCause(err)
}
