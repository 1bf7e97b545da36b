// Package metrics records Prometheus metrics for runs, nodes, model calls
// and tool calls.
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/BaSui01/agentgraph/agent"
	collector "github.com/BaSui01/agentgraph/internal/metrics"
)

// Config configures the metrics feature.
type Config struct {
	// Collector receives the observations. Required.
	Collector *collector.Collector

	now func() time.Time
}

type nodeKey struct {
	ac   *agent.Context
	node string
}

// State tracks the in-flight timings of one run.
type State struct {
	c   *collector.Collector
	now func() time.Time

	mu       sync.Mutex
	strategy string
	started  time.Time
	nodes    map[nodeKey]time.Time
	// LLM 调用按节点排队计时，同名节点并发时按 FIFO 配对
	llm map[string][]time.Time
}

func (s *State) push(node string) {
	s.mu.Lock()
	s.llm[node] = append(s.llm[node], s.now())
	s.mu.Unlock()
}

func (s *State) pop(node string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.llm[node]
	if len(q) == 0 {
		return 0
	}
	start := q[0]
	s.llm[node] = q[1:]
	return s.now().Sub(start)
}

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("metrics")

type feature struct{}

// Feature is the installable metrics feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config { return &Config{now: time.Now} }

func (feature) NewState(cfg *Config) (*State, error) {
	if cfg.Collector == nil {
		return nil, errors.New("metrics feature needs a collector")
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	return &State{
		c:     cfg.Collector,
		now:   cfg.now,
		nodes: make(map[nodeKey]time.Time),
		llm:   make(map[string][]time.Time),
	}, nil
}

func (feature) Install(_ *Config, ic *agent.Interceptor[State]) {
	ic.OnStrategyStarted(func(_ context.Context, s *State, e *agent.StrategyStartedEvent) error {
		s.mu.Lock()
		s.strategy = e.Strategy
		s.started = s.now()
		s.mu.Unlock()
		return nil
	})
	finish := func(s *State, status string) {
		s.mu.Lock()
		strategy, started := s.strategy, s.started
		s.mu.Unlock()
		s.c.RecordRun(strategy, status, s.now().Sub(started))
	}
	ic.OnAgentFinished(func(_ context.Context, s *State, _ *agent.AgentFinishedEvent) error {
		finish(s, "success")
		return nil
	})
	ic.OnAgentRunError(func(_ context.Context, s *State, _ *agent.AgentRunErrorEvent) error {
		finish(s, "error")
		return nil
	})

	ic.OnBeforeNode(func(_ context.Context, s *State, e *agent.BeforeNodeEvent) error {
		s.mu.Lock()
		s.nodes[nodeKey{e.Context, e.Node}] = s.now()
		s.mu.Unlock()
		return nil
	})
	endNode := func(s *State, ac *agent.Context, node, status string) {
		s.mu.Lock()
		k := nodeKey{ac, node}
		start, ok := s.nodes[k]
		delete(s.nodes, k)
		strategy := s.strategy
		s.mu.Unlock()
		var d time.Duration
		if ok {
			d = s.now().Sub(start)
		}
		s.c.RecordNode(strategy, node, status, d)
	}
	ic.OnAfterNode(func(_ context.Context, s *State, e *agent.AfterNodeEvent) error {
		endNode(s, e.Context, e.Node, "success")
		return nil
	})
	ic.OnNodeError(func(_ context.Context, s *State, e *agent.NodeErrorEvent) (agent.Recovery, error) {
		if e.DeadEnd {
			s.mu.Lock()
			strategy := s.strategy
			s.mu.Unlock()
			s.c.RecordDeadEnd(strategy, e.Node)
			return agent.Recovery{}, nil
		}
		endNode(s, e.Context, e.Node, "error")
		return agent.Recovery{}, nil
	})

	before := func(_ context.Context, s *State, e *agent.BeforeLLMCallEvent) error {
		s.push(e.Node)
		return nil
	}
	after := func(kind string) func(context.Context, *State, *agent.AfterLLMCallEvent) error {
		return func(_ context.Context, s *State, e *agent.AfterLLMCallEvent) error {
			text, calls := 0, 0
			for _, m := range e.Responses {
				if m.IsToolCall() {
					calls++
				} else {
					text++
				}
			}
			status := "success"
			if e.Err != nil {
				status = "error"
			}
			s.c.RecordLLMRequest(e.Model.String(), kind, status, s.pop(e.Node), text, calls)
			return nil
		}
	}
	ic.OnBeforeLLMCall(before)
	ic.OnBeforeLLMCallWithTools(before)
	ic.OnAfterLLMCall(after("plain"))
	ic.OnAfterLLMCallWithTools(after("tools"))

	ic.OnAfterToolCalls(func(_ context.Context, s *State, e *agent.AfterToolCallsEvent) error {
		for _, r := range e.Results {
			status := "success"
			if r.Error != "" {
				status = "error"
			}
			s.c.RecordToolCall(r.Name, status, r.Duration)
		}
		return nil
	})
	ic.OnToolDispatchError(func(_ context.Context, s *State, e *agent.ToolDispatchErrorEvent) (agent.Recovery, error) {
		s.c.RecordToolDispatchError(e.Call.Name)
		return agent.Recovery{}, nil
	})
}
