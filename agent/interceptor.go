package agent

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Interceptor registers one feature's handlers. Every handler receives the
// feature state owned by the pipeline. Registration is only valid inside
// Feature.Install.
type Interceptor[S any] struct {
	p       *Pipeline
	feature string
	state   *S
}

// State returns the feature state.
func (ic *Interceptor[S]) State() *S { return ic.state }

// Feature returns the feature name.
func (ic *Interceptor[S]) Feature() string { return ic.feature }

func bind[S, E any](ic *Interceptor[S], h func(context.Context, *S, *E) error) handler[E] {
	if ic.p.sealed {
		panic(types.NewError(types.ErrPipelineSealed, fmt.Sprintf("feature %s registered a handler after the run started", ic.feature)))
	}
	state := ic.state
	return handler[E]{feature: ic.feature, fn: func(ctx context.Context, e *E) error { return h(ctx, state, e) }}
}

func bindRecover[S, E any](ic *Interceptor[S], h func(context.Context, *S, *E) (Recovery, error)) recoverer[E] {
	if ic.p.sealed {
		panic(types.NewError(types.ErrPipelineSealed, fmt.Sprintf("feature %s registered a handler after the run started", ic.feature)))
	}
	state := ic.state
	return recoverer[E]{feature: ic.feature, fn: func(ctx context.Context, e *E) (Recovery, error) { return h(ctx, state, e) }}
}

// 🔔 通知类事件（safe）

func (ic *Interceptor[S]) OnAgentCreated(h func(context.Context, *S, *AgentCreatedEvent) error) {
	ic.p.agentCreated = append(ic.p.agentCreated, bind(ic, h))
}

func (ic *Interceptor[S]) OnStrategyStarted(h func(context.Context, *S, *StrategyStartedEvent) error) {
	ic.p.strategyStarted = append(ic.p.strategyStarted, bind(ic, h))
}

func (ic *Interceptor[S]) OnStrategyFinished(h func(context.Context, *S, *StrategyFinishedEvent) error) {
	ic.p.strategyFinished = append(ic.p.strategyFinished, bind(ic, h))
}

func (ic *Interceptor[S]) OnAgentFinished(h func(context.Context, *S, *AgentFinishedEvent) error) {
	ic.p.agentFinished = append(ic.p.agentFinished, bind(ic, h))
}

func (ic *Interceptor[S]) OnAgentRunError(h func(context.Context, *S, *AgentRunErrorEvent) error) {
	ic.p.agentRunError = append(ic.p.agentRunError, bind(ic, h))
}

// 🤖 模型调用

func (ic *Interceptor[S]) OnBeforeLLMCall(h func(context.Context, *S, *BeforeLLMCallEvent) error) {
	ic.p.beforeLLM = append(ic.p.beforeLLM, bind(ic, h))
}

func (ic *Interceptor[S]) OnAfterLLMCall(h func(context.Context, *S, *AfterLLMCallEvent) error) {
	ic.p.afterLLM = append(ic.p.afterLLM, bind(ic, h))
}

func (ic *Interceptor[S]) OnBeforeLLMCallWithTools(h func(context.Context, *S, *BeforeLLMCallEvent) error) {
	ic.p.beforeLLMTools = append(ic.p.beforeLLMTools, bind(ic, h))
}

func (ic *Interceptor[S]) OnAfterLLMCallWithTools(h func(context.Context, *S, *AfterLLMCallEvent) error) {
	ic.p.afterLLMTools = append(ic.p.afterLLMTools, bind(ic, h))
}

// 🔧 工具调用

func (ic *Interceptor[S]) OnBeforeToolCalls(h func(context.Context, *S, *BeforeToolCallsEvent) error) {
	ic.p.beforeToolCalls = append(ic.p.beforeToolCalls, bind(ic, h))
}

func (ic *Interceptor[S]) OnAfterToolCalls(h func(context.Context, *S, *AfterToolCallsEvent) error) {
	ic.p.afterToolCalls = append(ic.p.afterToolCalls, bind(ic, h))
}

func (ic *Interceptor[S]) OnToolDispatchError(h func(context.Context, *S, *ToolDispatchErrorEvent) (Recovery, error)) {
	ic.p.toolDispatchError = append(ic.p.toolDispatchError, bindRecover(ic, h))
}

// 🧩 节点

func (ic *Interceptor[S]) OnBeforeNode(h func(context.Context, *S, *BeforeNodeEvent) error) {
	ic.p.beforeNode = append(ic.p.beforeNode, bind(ic, h))
}

func (ic *Interceptor[S]) OnAfterNode(h func(context.Context, *S, *AfterNodeEvent) error) {
	ic.p.afterNode = append(ic.p.afterNode, bind(ic, h))
}

func (ic *Interceptor[S]) OnNodeError(h func(context.Context, *S, *NodeErrorEvent) (Recovery, error)) {
	ic.p.nodeError = append(ic.p.nodeError, bindRecover(ic, h))
}

// OnStageFeature registers the factory behind StageFeature. It is called at
// most once per stage and context; the instance is dropped when the stage
// ends.
func (ic *Interceptor[S]) OnStageFeature(factory func(ctx context.Context, s *S, stage string) (any, error)) {
	if ic.p.sealed {
		panic(types.NewError(types.ErrPipelineSealed, fmt.Sprintf("feature %s registered a handler after the run started", ic.feature)))
	}
	state := ic.state
	ic.p.stageFactories[ic.feature] = func(ctx context.Context, stage string) (any, error) {
		return factory(ctx, state, stage)
	}
}

// StageFeature returns the stage-scoped instance of the feature identified
// by key, creating it on first lookup within the current stage.
func StageFeature[T, S any](ctx context.Context, ac *Context, key FeatureKey[S]) (T, error) {
	var zero T
	st := ac.stage
	if v, ok := st.features[key.name]; ok {
		t, ok := v.(T)
		if !ok {
			return zero, types.NewError(types.ErrTypeMismatch, fmt.Sprintf("stage feature %s is %T, not %T", key.name, v, zero))
		}
		return t, nil
	}

	factory, ok := ac.pipeline.stageFactories[key.name]
	if !ok {
		return zero, types.NewError(types.ErrFeatureNotFound, fmt.Sprintf("feature %s is not installed or has no stage instance", key.name))
	}
	v, err := factory(ctx, st.name)
	if err != nil {
		return zero, fmt.Errorf("create stage feature %s: %w", key.name, err)
	}
	t, ok := v.(T)
	if !ok {
		return zero, types.NewError(types.ErrTypeMismatch, fmt.Sprintf("stage feature %s is %T, not %T", key.name, v, zero))
	}
	st.features[key.name] = v
	return t, nil
}
