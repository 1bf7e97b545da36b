package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/testutil/mocks"
)

// recorder is a test feature that logs every event it sees.
type recorderState struct {
	mu     sync.Mutex
	events []string
}

func (s *recorderState) add(format string, args ...any) {
	s.mu.Lock()
	s.events = append(s.events, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *recorderState) list() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

type recorderConfig struct {
	invalid         bool
	rejectBeforeLLM error
	recoverDispatch func(*ToolDispatchErrorEvent) Recovery
	recoverNode     func(*NodeErrorEvent) Recovery
	onInstall       func(*Interceptor[recorderState])
}

type recorder struct {
	name string
}

func (r recorder) Key() FeatureKey[recorderState] {
	return NewFeatureKey[recorderState](r.name)
}

func (recorder) NewConfig() *recorderConfig { return &recorderConfig{} }

func (recorder) NewState(cfg *recorderConfig) (*recorderState, error) {
	if cfg.invalid {
		return nil, fmt.Errorf("invalid configuration")
	}
	return &recorderState{}, nil
}

func (r recorder) Install(cfg *recorderConfig, ic *Interceptor[recorderState]) {
	ic.OnAgentCreated(func(_ context.Context, s *recorderState, e *AgentCreatedEvent) error {
		s.add("agent_created:%s", e.Strategy)
		return nil
	})
	ic.OnStrategyStarted(func(_ context.Context, s *recorderState, e *StrategyStartedEvent) error {
		s.add("strategy_started:%s", e.Strategy)
		return nil
	})
	ic.OnStrategyFinished(func(_ context.Context, s *recorderState, e *StrategyFinishedEvent) error {
		s.add("strategy_finished:%v", e.Result)
		return nil
	})
	ic.OnAgentFinished(func(_ context.Context, s *recorderState, e *AgentFinishedEvent) error {
		s.add("agent_finished:%v", e.Result)
		return nil
	})
	ic.OnAgentRunError(func(_ context.Context, s *recorderState, e *AgentRunErrorEvent) error {
		s.add("agent_run_error")
		return nil
	})
	ic.OnBeforeLLMCall(func(_ context.Context, s *recorderState, e *BeforeLLMCallEvent) error {
		s.add("before_llm:%s", e.Node)
		return cfg.rejectBeforeLLM
	})
	ic.OnAfterLLMCall(func(_ context.Context, s *recorderState, e *AfterLLMCallEvent) error {
		s.add("after_llm:%d", len(e.Responses))
		return nil
	})
	ic.OnBeforeLLMCallWithTools(func(_ context.Context, s *recorderState, e *BeforeLLMCallEvent) error {
		s.add("before_llm_tools:%d", len(e.Tools))
		return cfg.rejectBeforeLLM
	})
	ic.OnAfterLLMCallWithTools(func(_ context.Context, s *recorderState, e *AfterLLMCallEvent) error {
		s.add("after_llm_tools:%d", len(e.Responses))
		return nil
	})
	ic.OnBeforeToolCalls(func(_ context.Context, s *recorderState, e *BeforeToolCallsEvent) error {
		s.add("before_tools:%d", len(e.Calls))
		return nil
	})
	ic.OnAfterToolCalls(func(_ context.Context, s *recorderState, e *AfterToolCallsEvent) error {
		s.add("after_tools:%d", len(e.Results))
		return nil
	})
	ic.OnToolDispatchError(func(_ context.Context, s *recorderState, e *ToolDispatchErrorEvent) (Recovery, error) {
		s.add("dispatch_error:%s", e.Call.Name)
		if cfg.recoverDispatch != nil {
			return cfg.recoverDispatch(e), nil
		}
		return Recovery{}, nil
	})
	ic.OnBeforeNode(func(_ context.Context, s *recorderState, e *BeforeNodeEvent) error {
		s.add("before_node:%s", e.Node)
		return nil
	})
	ic.OnAfterNode(func(_ context.Context, s *recorderState, e *AfterNodeEvent) error {
		s.add("after_node:%s", e.Node)
		return nil
	})
	ic.OnNodeError(func(_ context.Context, s *recorderState, e *NodeErrorEvent) (Recovery, error) {
		s.add("node_error:%s", e.Node)
		if cfg.recoverNode != nil {
			return cfg.recoverNode(e), nil
		}
		return Recovery{}, nil
	})
	if cfg.onInstall != nil {
		cfg.onInstall(ic)
	}
}

var testFeature = recorder{name: "recorder"}

// newPipeline installs the recorder with configure and seals the pipeline.
func newPipeline(t *testing.T, configure func(*recorderConfig)) (*Pipeline, *recorderState) {
	t.Helper()
	p := NewPipeline(zaptest.NewLogger(t))
	if err := Install(p, testFeature, configure); err != nil {
		t.Fatalf("install recorder: %v", err)
	}
	p.Seal()
	state, _ := FeatureState(p, testFeature.Key())
	return p, state
}

func newTestContext(t *testing.T, exec llm.PromptExecutor, reg *tools.Registry, p *Pipeline) *Context {
	t.Helper()
	if reg == nil {
		reg = mocks.CalculatorRegistry()
	}
	return NewContext(ContextParams{
		RunID:    "run-1",
		Strategy: "test",
		Config:   NewConfig("You are a calculator.", llm.Model{Provider: "mock", ID: "mock-model"}),
		Executor: exec,
		Registry: reg,
		Pipeline: p,
		Logger:   zaptest.NewLogger(t),
	})
}
