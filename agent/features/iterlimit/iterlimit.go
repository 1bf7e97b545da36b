// Package iterlimit bounds how much work a run may do. A graph whose
// edges loop back, like the call_llm ⇄ execute_tool cycle, otherwise runs
// until the model stops asking for tools.
package iterlimit

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/BaSui01/agentgraph/agent"
)

// ErrLimitReached is the cause of the rejection once a budget is spent.
var ErrLimitReached = errors.New("iteration limit reached")

// Config sets the budgets. Zero means unbounded, but at least one budget
// must be set.
type Config struct {
	// MaxNodeExecutions counts node starts, Start and Finish included.
	MaxNodeExecutions int
	// MaxLLMCalls counts model requests of every kind.
	MaxLLMCalls int
	// Nodes restricts MaxNodeExecutions to the named nodes.
	Nodes []string
}

// State counts the work done so far.
type State struct {
	cfg   Config
	nodes atomic.Int64
	llm   atomic.Int64
}

func (s *State) NodeExecutions() int { return int(s.nodes.Load()) }
func (s *State) LLMCalls() int       { return int(s.llm.Load()) }

// Key identifies the feature.
var Key = agent.NewFeatureKey[State]("iterlimit")

type feature struct{}

// Feature is the installable iteration-limit feature.
var Feature agent.Feature[Config, State] = feature{}

func (feature) Key() agent.FeatureKey[State] { return Key }

func (feature) NewConfig() *Config { return &Config{} }

func (feature) NewState(cfg *Config) (*State, error) {
	if cfg.MaxNodeExecutions < 0 || cfg.MaxLLMCalls < 0 {
		return nil, errors.New("iteration budgets must not be negative")
	}
	if cfg.MaxNodeExecutions == 0 && cfg.MaxLLMCalls == 0 {
		return nil, errors.New("iterlimit needs MaxNodeExecutions or MaxLLMCalls")
	}
	return &State{cfg: *cfg}, nil
}

func (feature) Install(_ *Config, ic *agent.Interceptor[State]) {
	ic.OnBeforeNode(func(_ context.Context, s *State, e *agent.BeforeNodeEvent) error {
		if s.cfg.MaxNodeExecutions == 0 {
			return nil
		}
		if len(s.cfg.Nodes) > 0 && !slices.Contains(s.cfg.Nodes, e.Node) {
			return nil
		}
		if n := s.nodes.Add(1); n > int64(s.cfg.MaxNodeExecutions) {
			return fmt.Errorf("%w: node %s would be execution %d of %d", ErrLimitReached, e.Node, n, s.cfg.MaxNodeExecutions)
		}
		return nil
	})

	llmCall := func(_ context.Context, s *State, e *agent.BeforeLLMCallEvent) error {
		if s.cfg.MaxLLMCalls == 0 {
			return nil
		}
		if n := s.llm.Add(1); n > int64(s.cfg.MaxLLMCalls) {
			return fmt.Errorf("%w: model call %d of %d in node %s", ErrLimitReached, n, s.cfg.MaxLLMCalls, e.Node)
		}
		return nil
	}
	ic.OnBeforeLLMCall(llmCall)
	ic.OnBeforeLLMCallWithTools(llmCall)
}
