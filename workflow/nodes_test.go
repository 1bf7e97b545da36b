package workflow

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/agent/features/eventhandler"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/testutil/fixtures"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

// Feature: agentgraph core, Property 7: Tool round trip
func TestSingleRunStrategy_ToolRoundTrip(t *testing.T) {
	exec := mocks.NewScriptedExecutor().
		ToolCall("plus", `{"a":2,"b":3}`).
		Reply("2 + 3 = 5")
	var tr trail
	var toolResults []tools.Result

	out, err := runStrategy[string, string](t, SingleRunStrategy(), exec, "What is 2 + 3?",
		agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
			tr.configure(c)
			c.OnToolResult = func(_ context.Context, e *agent.AfterToolCallsEvent) {
				toolResults = append(toolResults, e.Results...)
			}
		}))
	require.NoError(t, err)
	assert.Equal(t, "2 + 3 = 5", out)

	require.Len(t, toolResults, 1)
	assert.Equal(t, "5", toolResults[0].Content())

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"plus", "divide"}, calls[0].Tools)

	sent := calls[1].Prompt.Messages
	require.GreaterOrEqual(t, len(sent), 4)
	toolCall, result := sent[len(sent)-2], sent[len(sent)-1]
	assert.True(t, toolCall.IsToolCall())
	assert.True(t, result.IsToolResult())
	assert.Equal(t, toolCall.ToolCalls[0].ID, result.ToolCallID)
	assert.Equal(t, "5", result.Content)
	require.NoError(t, calls[1].Prompt.Validate())

	assert.Equal(t, []string{
		StartNodeName, "call_llm", "execute_tool", "send_tool_result", FinishNodeName,
	}, tr.list())
}

func TestSingleRunStrategy_ToolErrorFedBack(t *testing.T) {
	exec := mocks.NewScriptedExecutor().
		ToolCall("divide", `{"a":1,"b":0}`).
		Reply("cannot divide by zero")

	out, err := runStrategy[string, string](t, SingleRunStrategy(), exec, "1/0?")
	require.NoError(t, err)
	assert.Equal(t, "cannot divide by zero", out)
	last, _ := exec.LastPrompt()
	assert.Equal(t, "Error: division by zero", last.Messages[len(last.Messages)-1].Content)
}

func TestSingleRunStrategy_UnknownToolIsFatal(t *testing.T) {
	exec := mocks.NewScriptedExecutor().ToolCall("minus", `{"a":1,"b":1}`)
	_, err := runStrategy[string, string](t, SingleRunStrategy(), exec, "1-1?")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrToolNotRegistered, e.Code)
	assert.Equal(t, "execute_tool", e.Node)
	assert.Equal(t, types.PhaseDispatch, types.PhaseOf(err))
}

func TestParallelToolsStrategy(t *testing.T) {
	exec := mocks.NewScriptedExecutor().
		ParallelToolCalls(fixtures.PlusCall("a", 1, 2), fixtures.PlusCall("b", 3, 4)).
		Reply("3 and 7")

	out, err := runStrategy[string, string](t, ParallelToolsStrategy(true), exec, "two sums")
	require.NoError(t, err)
	assert.Equal(t, "3 and 7", out)

	last, _ := exec.LastPrompt()
	msgs := last.Messages
	require.GreaterOrEqual(t, len(msgs), 4)
	assert.Equal(t, "a", msgs[len(msgs)-2].ToolCallID)
	assert.Equal(t, "3", msgs[len(msgs)-2].Content)
	assert.Equal(t, "b", msgs[len(msgs)-1].ToolCallID)
	assert.Equal(t, "7", msgs[len(msgs)-1].Content)
	require.NoError(t, last.Validate())
}

func TestSubgraph_StaticScope(t *testing.T) {
	inner := NewStrategy[string, string]("math", WithToolScope(tools.StaticScope("plus")))
	ask := NodeLLMRequestWithoutTools("ask_inner")
	inner.AddEdge(
		To(From(inner.Start()), ask),
		To(OnAssistantMessage(From(ask)), inner.Finish()),
	)

	var stages []string
	outer := NewStrategy[string, string]("outer")
	sub := Subgraph("math_stage", inner.MustBuild())
	probe := NewNode("probe", func(ctx context.Context, ac *agent.Context, in string) (string, error) {
		stages = append(stages, ac.StageName())
		return in, nil
	})
	final := NodeLLMRequest("ask_outer")
	outer.AddEdge(
		To(From(outer.Start()), sub),
		To(From(sub), probe),
		To(From(probe), final),
		To(OnAssistantMessage(From(final)), outer.Finish()),
	)

	exec := mocks.NewScriptedExecutor().Reply("inner").Reply("outer")
	var innerTools []string
	out, err := runStrategy[string, string](t, outer.MustBuild(), exec, "go",
		agent.Use(eventhandler.Feature, func(c *eventhandler.Config) {
			c.OnBeforeNode = func(_ context.Context, e *agent.BeforeNodeEvent) {
				if e.Node == "ask_inner" {
					innerTools = e.Context.LLM().ActiveTools().Names()
					stages = append(stages, e.Context.StageName())
				}
			}
		}))
	require.NoError(t, err)
	assert.Equal(t, "outer", out)
	assert.Equal(t, []string{"plus"}, innerTools)
	assert.Equal(t, []string{"math_stage", "outer"}, stages)

	calls := exec.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"plus", "divide"}, calls[1].Tools, "tools restored after the subgraph")
	assert.Equal(t, "inner", calls[1].Prompt.Messages[2].Content, "prompt changes persist")
}

func TestSubgraph_InvalidScopeFailsBeforeRun(t *testing.T) {
	inner := NewStrategy[string, string]("inner")
	inner.AddEdge(To(From(inner.Start()), inner.Finish()))
	outer := NewStrategy[string, string]("outer")
	sub := Subgraph("sub", inner.MustBuild(), WithSubgraphTools(tools.StaticScope("minus")))
	outer.AddEdge(To(From(outer.Start()), sub), To(From(sub), outer.Finish()))

	exec := mocks.NewScriptedExecutor()
	_, err := runStrategy[string, string](t, outer.MustBuild(), exec, "x")
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrToolScopeInvalid, e.Code)
	assert.Equal(t, "sub", e.Node)
	assert.Zero(t, exec.CallCount())
}

func TestNodeLLMRequestWithChoice_KeepsOnlyChosen(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Choices(
		llm.Choice{types.NewAssistantMessage("first")},
		llm.Choice{types.NewAssistantMessage("second")},
		llm.Choice{types.NewAssistantMessage("third")},
	)
	ac := newRunContext(t, exec, nil)
	pickLast := agent.ChoiceStrategyFunc(func(_ context.Context, _ types.Prompt, choices []llm.Choice) (llm.Choice, error) {
		return choices[len(choices)-1], nil
	})

	raw, err := NodeLLMRequestWithChoice("choose", pickLast).run(context.Background(), ac, "pick one")
	require.NoError(t, err)
	chosen := raw.([]types.Message)
	require.Len(t, chosen, 1)
	assert.Equal(t, "third", chosen[0].Content)

	require.NoError(t, ac.LLM().ReadSession(context.Background(), func(s *agent.ReadSession) error {
		var contents []string
		for _, m := range s.Prompt().Messages {
			contents = append(contents, m.Content)
		}
		assert.Equal(t, []string{"You are a calculator.", "pick one", "third"}, contents)
		return nil
	}))
}

func TestNodeLLMRequestWithReply_DummyKeepsFirst(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Reply("r1").Reply("r2").Reply("r3")
	ac := newRunContext(t, exec, nil)

	raw, err := NodeLLMRequestWithReply("replies", 3, agent.DummyReplyChoiceStrategy{}).run(context.Background(), ac, "q")
	require.NoError(t, err)
	require.Len(t, raw.([]types.Message), 1)

	require.NoError(t, ac.LLM().ReadSession(context.Background(), func(s *agent.ReadSession) error {
		msgs := s.Prompt().Messages
		require.Len(t, msgs, 3)
		assert.Equal(t, raw.([]types.Message)[0].Content, msgs[2].Content)
		return nil
	}))
}

func TestNodeLLMRequestStreaming(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Reply("streamed reply text")
	ac := newRunContext(t, exec, nil)
	var chunks []string

	raw, err := NodeLLMRequestStreaming("stream", func(c llm.StreamChunk) {
		chunks = append(chunks, c.Delta.Content)
	}).run(context.Background(), ac, "talk")
	require.NoError(t, err)
	assert.Equal(t, "streamed reply text", raw.(types.Message).Content)
	assert.Equal(t, "streamed reply text", strings.Join(chunks, ""))

	require.NoError(t, ac.LLM().ReadSession(context.Background(), func(s *agent.ReadSession) error {
		last, ok := s.Prompt().Last().Get()
		require.True(t, ok)
		assert.Equal(t, "streamed reply text", last.Content)
		return nil
	}))
}

func TestNodeLLMRequestStructured(t *testing.T) {
	type verdict struct {
		OK     bool   `json:"ok"`
		Reason string `json:"reason"`
	}
	exec := mocks.NewScriptedExecutor().Reply("```json\n{\"ok\": true, \"reason\": \"fine\"}\n```")
	ac := newRunContext(t, exec, nil)

	raw, err := NodeLLMRequestStructured("judge", verdict{}).run(context.Background(), ac, "judge this")
	require.NoError(t, err)
	assert.Equal(t, verdict{OK: true, Reason: "fine"}, raw)
}

func TestPromptNodes(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Reply("summary of everything")
	ac := newRunContext(t, exec, nil)
	ctx := context.Background()

	appendNode := NodeAppendPrompt("append", func(in int) []types.Message {
		return []types.Message{types.NewUserMessage("n is"), types.NewAssistantMessage("noted")}
	})
	out, err := appendNode.run(ctx, ac, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	out, err = NodeLLMCompressHistory[int]("compress").run(ctx, ac, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, out)

	require.NoError(t, ac.LLM().ReadSession(ctx, func(s *agent.ReadSession) error {
		msgs := s.Prompt().Messages
		require.Len(t, msgs, 2)
		assert.Equal(t, types.RoleSystem, msgs[0].Role)
		assert.Equal(t, "summary of everything", msgs[1].Content)
		return nil
	}))

	out, err = NodeDoNothing[int]("noop").run(ctx, ac, 9)
	require.NoError(t, err)
	assert.Equal(t, 9, out)
}

func TestNodeRun_TypeMismatch(t *testing.T) {
	_, err := NodeExecuteTool("exec").run(context.Background(), newRunContext(t, nil, nil), "not a call")
	assert.True(t, types.IsCode(err, types.ErrTypeMismatch), "got %v", err)
	assert.Contains(t, err.Error(), "types.ToolCall")
}
