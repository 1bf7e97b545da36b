// Package tracing turns pipeline events into FeatureMessages and forwards
// them to one or more sinks: the zap log, a JSON-lines writer or a remote
// websocket collector.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/types"
)

// Kind 区分消息类记录（prompt / response / tool result）与生命周期事件
type Kind string

const (
	KindMessage Kind = "message"
	KindEvent   Kind = "event"
)

// FeatureMessage is one traced record.
type FeatureMessage struct {
	Kind      Kind            `json:"kind"`
	Event     agent.EventType `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	RunID     string          `json:"run_id"`
	AgentID   string          `json:"agent_id,omitempty"`
	Strategy  string          `json:"strategy,omitempty"`
	Node      string          `json:"node,omitempty"`
	Messages  []types.Message `json:"messages,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Sink receives traced messages. ProcessMessage may be called concurrently.
type Sink interface {
	ProcessMessage(ctx context.Context, msg FeatureMessage) error
}

// Closer is implemented by sinks that hold resources. The feature closes
// them when the run ends.
type Closer interface {
	Close() error
}

// Config configures the tracing feature.
type Config struct {
	Sinks []Sink
	// Filter drops messages for which it returns false. Nil keeps all.
	Filter func(FeatureMessage) bool
	// FailOnSinkError makes a sink error reject the traced operation.
	// Lifecycle events never fail the run.
	FailOnSinkError bool
	// KeepSinksOpen skips closing sinks when the run ends.
	KeepSinksOpen bool

	now func() time.Time
}

// AddSink appends a sink.
func (c *Config) AddSink(s Sink) { c.Sinks = append(c.Sinks, s) }

// State holds the sinks of one run.
type State struct {
	cfg     *Config
	mu      sync.Mutex
	dropped int
	sent    int
}

// Sent returns how many messages reached every sink.
func (s *State) Sent() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Dropped returns how many messages the filter rejected.
func (s *State) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *State) emit(ctx context.Context, msg FeatureMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.cfg.now()
	}
	if s.cfg.Filter != nil && !s.cfg.Filter(msg) {
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		return nil
	}

	var errs []error
	for _, sink := range s.cfg.Sinks {
		if err := sink.ProcessMessage(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("sink %T: %w", sink, err))
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		if s.cfg.FailOnSinkError {
			return err
		}
		return nil
	}
	s.mu.Lock()
	s.sent++
	s.mu.Unlock()
	return nil
}

func (s *State) close() error {
	if s.cfg.KeepSinksOpen {
		return nil
	}
	var errs []error
	for _, sink := range s.cfg.Sinks {
		if c, ok := sink.(Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("tracing")

type feature struct{}

// Feature is the installable tracing feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config { return &Config{now: time.Now} }

func (feature) NewState(cfg *Config) (*State, error) {
	if len(cfg.Sinks) == 0 {
		return nil, errors.New("tracing needs at least one sink")
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &State{cfg: cfg}, nil
}

func event(t agent.EventType, info agent.RunInfo) FeatureMessage {
	return FeatureMessage{Kind: KindEvent, Event: t, RunID: info.RunID, AgentID: info.AgentID}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (feature) Install(_ *Config, ic *agent.Interceptor[State]) {
	ic.OnAgentCreated(func(ctx context.Context, s *State, e *agent.AgentCreatedEvent) error {
		m := event(agent.EventAgentCreated, e.RunInfo)
		m.Strategy = e.Strategy
		return s.emit(ctx, m)
	})
	ic.OnStrategyStarted(func(ctx context.Context, s *State, e *agent.StrategyStartedEvent) error {
		m := event(agent.EventStrategyStarted, e.RunInfo)
		m.Strategy = e.Strategy
		return s.emit(ctx, m)
	})
	ic.OnStrategyFinished(func(ctx context.Context, s *State, e *agent.StrategyFinishedEvent) error {
		m := event(agent.EventStrategyFinished, e.RunInfo)
		m.Strategy = e.Strategy
		m.Data = map[string]any{"result": e.Result}
		return s.emit(ctx, m)
	})
	ic.OnAgentFinished(func(ctx context.Context, s *State, e *agent.AgentFinishedEvent) error {
		m := event(agent.EventAgentFinished, e.RunInfo)
		m.Strategy = e.Strategy
		err := s.emit(ctx, m)
		return errors.Join(err, s.close())
	})
	ic.OnAgentRunError(func(ctx context.Context, s *State, e *agent.AgentRunErrorEvent) error {
		m := event(agent.EventAgentRunError, e.RunInfo)
		m.Strategy = e.Strategy
		m.Error = errString(e.Err)
		err := s.emit(ctx, m)
		return errors.Join(err, s.close())
	})

	// 模型请求与响应记为 message
	before := func(t agent.EventType) func(context.Context, *State, *agent.BeforeLLMCallEvent) error {
		return func(ctx context.Context, s *State, e *agent.BeforeLLMCallEvent) error {
			return s.emit(ctx, FeatureMessage{
				Kind: KindMessage, Event: t, RunID: e.RunID, AgentID: e.AgentID, Node: e.Node,
				Messages: e.Prompt.Messages,
				Data:     map[string]any{"model": e.Model.String(), "tools": len(e.Tools)},
			})
		}
	}
	after := func(t agent.EventType) func(context.Context, *State, *agent.AfterLLMCallEvent) error {
		return func(ctx context.Context, s *State, e *agent.AfterLLMCallEvent) error {
			return s.emit(ctx, FeatureMessage{
				Kind: KindMessage, Event: t, RunID: e.RunID, AgentID: e.AgentID, Node: e.Node,
				Messages: e.Responses,
				Data:     map[string]any{"model": e.Model.String()},
				Error:    errString(e.Err),
			})
		}
	}
	ic.OnBeforeLLMCall(before(agent.EventBeforeLLMCall))
	ic.OnAfterLLMCall(after(agent.EventAfterLLMCall))
	ic.OnBeforeLLMCallWithTools(before(agent.EventBeforeLLMCallWithTools))
	ic.OnAfterLLMCallWithTools(after(agent.EventAfterLLMCallWithTools))

	ic.OnBeforeToolCalls(func(ctx context.Context, s *State, e *agent.BeforeToolCallsEvent) error {
		m := event(agent.EventBeforeToolCalls, e.RunInfo)
		m.Node = e.Node
		m.Messages = []types.Message{types.NewToolCallMessage(e.Calls...)}
		return s.emit(ctx, m)
	})
	ic.OnAfterToolCalls(func(ctx context.Context, s *State, e *agent.AfterToolCallsEvent) error {
		msgs := make([]types.Message, len(e.Results))
		for i, r := range e.Results {
			msgs[i] = r.Message()
		}
		return s.emit(ctx, FeatureMessage{
			Kind: KindMessage, Event: agent.EventAfterToolCalls, RunID: e.RunID, AgentID: e.AgentID,
			Node: e.Node, Messages: msgs,
		})
	})
	ic.OnToolDispatchError(func(ctx context.Context, s *State, e *agent.ToolDispatchErrorEvent) (agent.Recovery, error) {
		m := event(agent.EventToolDispatchError, e.RunInfo)
		m.Node = e.Node
		m.Data = map[string]any{"tool": e.Call.Name}
		m.Error = errString(e.Err)
		return agent.Recovery{}, s.emit(ctx, m)
	})

	ic.OnBeforeNode(func(ctx context.Context, s *State, e *agent.BeforeNodeEvent) error {
		m := event(agent.EventBeforeNode, e.RunInfo)
		m.Node = e.Node
		m.Data = map[string]any{"input": e.Input}
		return s.emit(ctx, m)
	})
	ic.OnAfterNode(func(ctx context.Context, s *State, e *agent.AfterNodeEvent) error {
		m := event(agent.EventAfterNode, e.RunInfo)
		m.Node = e.Node
		m.Data = map[string]any{"output": e.Output}
		return s.emit(ctx, m)
	})
	ic.OnNodeError(func(ctx context.Context, s *State, e *agent.NodeErrorEvent) (agent.Recovery, error) {
		m := event(agent.EventNodeError, e.RunInfo)
		m.Node = e.Node
		m.Data = map[string]any{"dead_end": e.DeadEnd}
		m.Error = errString(e.Err)
		return agent.Recovery{}, s.emit(ctx, m)
	})
}
