package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/testutil/fixtures"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

func TestStorageKey_TypedAccess(t *testing.T) {
	ac := newTestContext(t, nil, nil, nil)
	count := NewStorageKey[int]("count")
	sameNameOtherType := NewStorageKey[string]("count")

	_, ok := count.Get(ac.Storage())
	assert.False(t, ok)

	count.Set(ac.Storage(), 3)
	v, ok := count.Get(ac.Storage())
	assert.True(t, ok)
	assert.Equal(t, 3, v)

	_, ok = sameNameOtherType.Get(ac.Storage())
	assert.False(t, ok, "keys differ by value type")

	count.Remove(ac.Storage())
	assert.Zero(t, ac.Storage().Len())
}

// Forks never observe each other's writes.
func TestFork_IsolationProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ac := newTestContext(t, nil, nil, nil)
		key := NewStorageKey[string]("k")
		base := rapid.String().Draw(rt, "base")
		key.Set(ac.Storage(), base)

		n := rapid.IntRange(1, 5).Draw(rt, "forks")
		forks := make([]*Context, n)
		for i := range forks {
			forks[i] = ac.Fork()
			key.Set(forks[i].Storage(), fmt.Sprintf("v%d", i+1))
			_ = forks[i].LLM().WriteSession(context.Background(), func(s *WriteSession) error {
				s.AppendPrompt(types.NewUserMessage(fmt.Sprintf("fork %d", i+1)))
				return nil
			})
		}

		got, _ := key.Get(ac.Storage())
		if got != base {
			rt.Fatalf("parent storage changed to %q", got)
		}
		for i, f := range forks {
			v, _ := key.Get(f.Storage())
			if v != fmt.Sprintf("v%d", i+1) {
				rt.Fatalf("fork %d sees %q", i, v)
			}
		}
		_ = ac.LLM().ReadSession(context.Background(), func(s *ReadSession) error {
			if len(s.Prompt().Messages) != 1 {
				rt.Fatalf("parent prompt has %d messages", len(s.Prompt().Messages))
			}
			return nil
		})
	})
}

func TestFork_CloneHookCopiesMutableValues(t *testing.T) {
	ac := newTestContext(t, nil, nil, nil)
	shared := NewStorageKey[[]string]("shared")
	cloned := NewStorageKey[[]string]("cloned").WithClone(func(v []string) []string {
		return append([]string(nil), v...)
	})
	shared.Set(ac.Storage(), []string{"a"})
	cloned.Set(ac.Storage(), []string{"a"})

	f := ac.Fork()
	v, _ := cloned.Get(f.Storage())
	v[0] = "branch"
	sv, _ := shared.Get(f.Storage())
	sv[0] = "branch"

	got, _ := cloned.Get(ac.Storage())
	assert.Equal(t, []string{"a"}, got)
	got, _ = shared.Get(ac.Storage())
	assert.Equal(t, []string{"branch"}, got, "values without a hook are shared")

	// a key without the hook still addresses the same slot
	plain := NewStorageKey[[]string]("cloned")
	pv, ok := plain.Get(f.Storage())
	require.True(t, ok)
	assert.Equal(t, []string{"branch"}, pv)
}

func TestReplace_AdoptsStorageAndPrompt(t *testing.T) {
	ac := newTestContext(t, nil, nil, nil)
	key := NewStorageKey[string]("k")
	key.Set(ac.Storage(), "parent")

	branch := ac.Fork()
	key.Set(branch.Storage(), "branch")
	require.NoError(t, branch.LLM().WriteSession(context.Background(), func(s *WriteSession) error {
		s.AppendPrompt(types.NewUserMessage("from branch"))
		return nil
	}))

	ac.Replace(branch)
	v, _ := key.Get(ac.Storage())
	assert.Equal(t, "branch", v)
	require.NoError(t, ac.LLM().ReadSession(context.Background(), func(s *ReadSession) error {
		msgs := s.Prompt().Messages
		require.Len(t, msgs, 2)
		assert.Equal(t, "from branch", msgs[1].Content)
		return nil
	}))
	assert.Equal(t, "test", ac.StageName(), "stage is not adopted")
}

func TestEnterStage_StaticScope(t *testing.T) {
	ac := newTestContext(t, nil, nil, nil)
	ctx := context.Background()
	assert.Equal(t, 2, ac.LLM().ActiveTools().Len())

	restore, err := ac.EnterStage("math", tools.StaticScope("plus"))
	require.NoError(t, err)
	assert.Equal(t, "math", ac.StageName())
	assert.Equal(t, []string{"plus"}, ac.LLM().ActiveTools().Names())

	err = ac.LLM().WriteSession(ctx, func(s *WriteSession) error { return s.SetTools("divide") })
	assert.True(t, types.IsCode(err, types.ErrToolScopeInvalid), "got %v", err)

	restore()
	assert.Equal(t, "test", ac.StageName())
	assert.Equal(t, 2, ac.LLM().ActiveTools().Len())

	_, err = ac.EnterStage("bad", tools.StaticScope("missing"))
	assert.True(t, types.IsCode(err, types.ErrToolScopeInvalid), "got %v", err)
	_, err = ac.EnterStage("empty", tools.StaticScope())
	assert.True(t, types.IsCode(err, types.ErrEmptyToolSet), "got %v", err)
}

func TestExecuteTool_RoundTrip(t *testing.T) {
	p, rec := newPipeline(t, nil)
	ac := newTestContext(t, nil, nil, p)

	res, err := ac.ExecuteTool(context.Background(), fixtures.PlusCall("call_1", 2, 3))
	require.NoError(t, err)
	assert.Equal(t, "5", res.Content())
	assert.Equal(t, "call_1", res.ToolCallID)

	msg := res.Message()
	assert.True(t, msg.IsToolResult())
	assert.Equal(t, "call_1", msg.ToolCallID)
	assert.Equal(t, []string{"before_tools:1", "after_tools:1"}, rec.list())
}

func TestExecuteTool_HandlerErrorBecomesContent(t *testing.T) {
	ac := newTestContext(t, nil, nil, nil)
	res, err := ac.ExecuteTool(context.Background(), fixtures.ToolCall("c", "divide", `{"a":1,"b":0}`))
	require.NoError(t, err)
	assert.Equal(t, "Error: division by zero", res.Content())
}

func TestExecuteTool_DispatchErrors(t *testing.T) {
	p, rec := newPipeline(t, nil)
	ac := newTestContext(t, nil, nil, p)
	ctx := types.WithNodeName(context.Background(), "exec")

	_, err := ac.ExecuteTool(ctx, fixtures.ToolCall("c", "minus", `{}`))
	require.Error(t, err)
	e, ok := types.AsError(err)
	require.True(t, ok)
	assert.Equal(t, types.ErrToolNotRegistered, e.Code)
	assert.Equal(t, "exec", e.Node)
	assert.Equal(t, types.PhaseDispatch, types.PhaseOf(err))

	_, err = ac.ExecuteTool(ctx, fixtures.ToolCall("c", "plus", `{"a":"two","b":3}`))
	assert.True(t, types.IsCode(err, types.ErrToolArgsInvalid), "got %v", err)
	assert.Contains(t, rec.list(), "dispatch_error:minus")
}

func TestExecuteTool_RecoveredDispatchError(t *testing.T) {
	p, _ := newPipeline(t, func(c *recorderConfig) {
		c.recoverDispatch = func(e *ToolDispatchErrorEvent) Recovery {
			return Recovered("no such tool: " + e.Call.Name)
		}
	})
	ac := newTestContext(t, nil, nil, p)

	res, err := ac.ExecuteTool(context.Background(), fixtures.ToolCall("c", "minus", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "no such tool: minus", res.Content())
}

func TestExecuteTools_ParallelKeepsOrder(t *testing.T) {
	reg, err := tools.NewRegistry(
		mocks.PlusTool(),
		mocks.NewMockTool("echo").
			WithDescriptor(tools.Descriptor{Name: "echo", Required: []tools.Parameter{{Name: "v", Type: tools.TypeString}}}).
			WithFunc(func(_ context.Context, args json.RawMessage) (json.RawMessage, error) {
				var in struct{ V string }
				_ = json.Unmarshal(args, &in)
				return json.Marshal(in.V)
			}),
	)
	require.NoError(t, err)
	ac := newTestContext(t, nil, reg, nil)

	calls := []types.ToolCall{
		fixtures.ToolCall("1", "echo", `{"v":"a"}`),
		fixtures.PlusCall("2", 1, 1),
		fixtures.ToolCall("3", "echo", `{"v":"c"}`),
	}
	results, err := ac.ExecuteTools(context.Background(), calls, true)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"a", "2", "c"}, []string{results[0].Content(), results[1].Content(), results[2].Content()})
	for i, r := range results {
		assert.Equal(t, calls[i].ID, r.ToolCallID)
	}
}
