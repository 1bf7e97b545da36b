// Package eventhandler installs plain user callbacks on the agent lifecycle.
package eventhandler

import (
	"context"
	"sync"

	"github.com/BaSui01/agentgraph/agent"
)

// Config holds the callbacks. Unset callbacks are skipped. Callbacks may be
// invoked concurrently from parallel branches.
type Config struct {
	OnAgentCreated     func(ctx context.Context, e *agent.AgentCreatedEvent)
	OnStrategyStarted  func(ctx context.Context, e *agent.StrategyStartedEvent)
	OnStrategyFinished func(ctx context.Context, e *agent.StrategyFinishedEvent)
	OnAgentFinished    func(ctx context.Context, e *agent.AgentFinishedEvent)
	OnAgentRunError    func(ctx context.Context, e *agent.AgentRunErrorEvent)

	// OnBeforeLLMCall fires before plain and tool-enabled model calls. A
	// non-nil error rejects the call.
	OnBeforeLLMCall func(ctx context.Context, e *agent.BeforeLLMCallEvent) error
	OnAfterLLMCall  func(ctx context.Context, e *agent.AfterLLMCallEvent)

	OnToolCall   func(ctx context.Context, e *agent.BeforeToolCallsEvent)
	OnToolResult func(ctx context.Context, e *agent.AfterToolCallsEvent)
	// OnToolDispatchError may recover an unknown tool or invalid arguments.
	OnToolDispatchError func(ctx context.Context, e *agent.ToolDispatchErrorEvent) agent.Recovery

	OnBeforeNode func(ctx context.Context, e *agent.BeforeNodeEvent)
	OnAfterNode  func(ctx context.Context, e *agent.AfterNodeEvent)
	// OnNodeError may recover a node failure or a dead end.
	OnNodeError func(ctx context.Context, e *agent.NodeErrorEvent) agent.Recovery
}

// State counts the events seen during one run.
type State struct {
	mu     sync.Mutex
	counts map[agent.EventType]int
}

func (s *State) inc(t agent.EventType) {
	s.mu.Lock()
	s.counts[t]++
	s.mu.Unlock()
}

// Count returns how many times event t fired.
func (s *State) Count(t agent.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[t]
}

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("event_handler")

type feature struct{}

// Feature is the installable event handler feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config { return &Config{} }

func (feature) NewState(*Config) (*State, error) {
	return &State{counts: map[agent.EventType]int{}}, nil
}

// notify wraps a callback that cannot fail.
func notify[E any](t agent.EventType, fn func(context.Context, *E)) func(context.Context, *State, *E) error {
	return func(ctx context.Context, s *State, e *E) error {
		s.inc(t)
		if fn != nil {
			fn(ctx, e)
		}
		return nil
	}
}

func recoverWith[E any](t agent.EventType, fn func(context.Context, *E) agent.Recovery) func(context.Context, *State, *E) (agent.Recovery, error) {
	return func(ctx context.Context, s *State, e *E) (agent.Recovery, error) {
		s.inc(t)
		if fn == nil {
			return agent.Recovery{}, nil
		}
		return fn(ctx, e), nil
	}
}

func (feature) Install(cfg *Config, ic *agent.Interceptor[State]) {
	ic.OnAgentCreated(notify(agent.EventAgentCreated, cfg.OnAgentCreated))
	ic.OnStrategyStarted(notify(agent.EventStrategyStarted, cfg.OnStrategyStarted))
	ic.OnStrategyFinished(notify(agent.EventStrategyFinished, cfg.OnStrategyFinished))
	ic.OnAgentFinished(notify(agent.EventAgentFinished, cfg.OnAgentFinished))
	ic.OnAgentRunError(notify(agent.EventAgentRunError, cfg.OnAgentRunError))

	before := func(t agent.EventType) func(context.Context, *State, *agent.BeforeLLMCallEvent) error {
		return func(ctx context.Context, s *State, e *agent.BeforeLLMCallEvent) error {
			s.inc(t)
			if cfg.OnBeforeLLMCall == nil {
				return nil
			}
			return cfg.OnBeforeLLMCall(ctx, e)
		}
	}
	ic.OnBeforeLLMCall(before(agent.EventBeforeLLMCall))
	ic.OnBeforeLLMCallWithTools(before(agent.EventBeforeLLMCallWithTools))
	ic.OnAfterLLMCall(notify(agent.EventAfterLLMCall, cfg.OnAfterLLMCall))
	ic.OnAfterLLMCallWithTools(notify(agent.EventAfterLLMCallWithTools, cfg.OnAfterLLMCall))

	ic.OnBeforeToolCalls(notify(agent.EventBeforeToolCalls, cfg.OnToolCall))
	ic.OnAfterToolCalls(notify(agent.EventAfterToolCalls, cfg.OnToolResult))
	ic.OnToolDispatchError(recoverWith(agent.EventToolDispatchError, cfg.OnToolDispatchError))

	ic.OnBeforeNode(notify(agent.EventBeforeNode, cfg.OnBeforeNode))
	ic.OnAfterNode(notify(agent.EventAfterNode, cfg.OnAfterNode))
	ic.OnNodeError(recoverWith(agent.EventNodeError, cfg.OnNodeError))
}
