package workflow

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/features/eventhandler"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil/mocks"
)

func testConfig() agent.Config {
	return agent.NewConfig("You are a calculator.", llm.Model{Provider: "mock", ID: "mock-model"})
}

// newRunContext builds a context the way AIAgent.Run does, with the event
// handler feature installed when configure is set.
func newRunContext(t *testing.T, exec llm.PromptExecutor, configure func(*eventhandler.Config)) *agent.Context {
	t.Helper()
	logger := zaptest.NewLogger(t)
	p := agent.NewPipeline(logger)
	if configure != nil {
		require.NoError(t, agent.Install(p, eventhandler.Feature, configure))
	}
	p.Seal()
	return agent.NewContext(agent.ContextParams{
		RunID:    "run-1",
		Strategy: "test",
		Config:   testConfig(),
		Executor: exec,
		Registry: mocks.CalculatorRegistry(),
		Pipeline: p,
		Logger:   logger,
	})
}

func runStrategy[I, O any](t *testing.T, s agent.Strategy[I, O], exec llm.PromptExecutor, in I, opts ...agent.Option) (O, error) {
	t.Helper()
	opts = append(opts, agent.WithLogger(zaptest.NewLogger(t)))
	return agent.Run(context.Background(), s, mocks.CalculatorRegistry(), in, exec, testConfig(), opts...)
}

// trail collects node names from the node events.
type trail struct {
	mu    sync.Mutex
	nodes []string
}

func (tr *trail) configure(c *eventhandler.Config) {
	c.OnBeforeNode = func(_ context.Context, e *agent.BeforeNodeEvent) {
		tr.mu.Lock()
		tr.nodes = append(tr.nodes, e.Node)
		tr.mu.Unlock()
	}
}

func (tr *trail) list() []string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]string(nil), tr.nodes...)
}
