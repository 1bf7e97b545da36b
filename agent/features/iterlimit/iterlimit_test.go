package iterlimit_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/features/iterlimit"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
	"github.com/BaSui01/agentgraph/workflow"
)

// loopingExecutor asks for the plus tool forever.
func loopingExecutor() *mocks.ScriptedExecutor {
	var n atomic.Int64
	return mocks.NewScriptedExecutor().WithHandler(func(context.Context, mocks.ExecutorCall) ([]types.Message, error) {
		id := n.Add(1)
		return []types.Message{types.NewToolCallMessage(types.ToolCall{
			ID:        fmt.Sprintf("loop_%d", id),
			Name:      "plus",
			Arguments: json.RawMessage(`{"a":1,"b":1}`),
		})}, nil
	})
}

func run(t *testing.T, exec llm.PromptExecutor, configure func(*iterlimit.Config)) (string, error) {
	t.Helper()
	cfg := agent.NewConfig("You are a calculator.", llm.Model{Provider: "mock", ID: "mock-model"})
	return agent.Run(context.Background(), workflow.SingleRunStrategy(), mocks.CalculatorRegistry(), "1+1 forever", exec, cfg,
		agent.WithLogger(zaptest.NewLogger(t)),
		agent.Use(iterlimit.Feature, configure))
}

func TestIterLimit_StopsModelLoop(t *testing.T) {
	exec := loopingExecutor()
	_, err := run(t, exec, func(c *iterlimit.Config) { c.MaxLLMCalls = 3 })
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrFeatureRejected), "got %v", err)
	assert.True(t, errors.Is(err, iterlimit.ErrLimitReached))
	assert.Equal(t, 3, exec.CallCount())
}

func TestIterLimit_CountsSelectedNodes(t *testing.T) {
	exec := loopingExecutor()
	_, err := run(t, exec, func(c *iterlimit.Config) {
		c.MaxNodeExecutions = 4
		c.Nodes = []string{"execute_tool"}
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, iterlimit.ErrLimitReached)
	assert.Contains(t, err.Error(), "execute_tool")
	// 第 5 次 execute_tool 之前被拒绝，模型已被调用 5 次
	assert.Equal(t, 5, exec.CallCount())
}

func TestIterLimit_WithinBudget(t *testing.T) {
	exec := mocks.NewScriptedExecutor().ToolCall("plus", `{"a":1,"b":1}`).Reply("2")
	out, err := run(t, exec, func(c *iterlimit.Config) {
		c.MaxNodeExecutions = 10
		c.MaxLLMCalls = 2
	})
	require.NoError(t, err)
	assert.Equal(t, "2", out)
}

func TestIterLimit_Config(t *testing.T) {
	p := agent.NewPipeline(nil)
	assert.Error(t, agent.Install(p, iterlimit.Feature, nil), "a budget is required")

	p = agent.NewPipeline(nil)
	assert.Error(t, agent.Install(p, iterlimit.Feature, func(c *iterlimit.Config) { c.MaxLLMCalls = -1 }))

	p = agent.NewPipeline(nil)
	require.NoError(t, agent.Install(p, iterlimit.Feature, func(c *iterlimit.Config) { c.MaxNodeExecutions = 1 }))
	s, ok := agent.FeatureState(p, iterlimit.Key)
	require.True(t, ok)
	assert.Zero(t, s.NodeExecutions())
	assert.Zero(t, s.LLMCalls())
}
