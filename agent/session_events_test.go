package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/testutil/fixtures"
	"github.com/BaSui01/agentgraph/testutil/mocks"
	"github.com/BaSui01/agentgraph/types"
)

func TestAfterLLMCall_HandlerCannotRewriteResponses(t *testing.T) {
	exec := mocks.NewScriptedExecutor().Reply("original").ToolCall("plus", `{"a":2,"b":3}`)
	p, _ := newPipeline(t, func(c *recorderConfig) {
		c.onInstall = func(ic *Interceptor[recorderState]) {
			ic.OnAfterLLMCallWithTools(func(_ context.Context, _ *recorderState, e *AfterLLMCallEvent) error {
				e.Responses[0].Content = "tampered"
				for i := range e.Responses[0].ToolCalls {
					e.Responses[0].ToolCalls[i].Arguments[0] = 'X'
				}
				e.Responses = append(e.Responses, types.NewAssistantMessage("extra"))
				return nil
			})
		}
	})
	ac := newTestContext(t, exec, nil, p)

	var first, second types.Message
	require.NoError(t, ac.LLM().WriteSession(context.Background(), func(s *WriteSession) (err error) {
		s.AppendPrompt(types.NewUserMessage("hi"))
		if first, err = s.RequestLLM(); err != nil {
			return err
		}
		second, err = s.RequestLLM()
		return err
	}))

	assert.Equal(t, "original", first.Content)
	require.Len(t, second.ToolCalls, 1)
	assert.JSONEq(t, `{"a":2,"b":3}`, string(second.ToolCalls[0].Arguments))

	msgs := promptOf(t, ac).Messages
	require.Len(t, msgs, 4)
	assert.Equal(t, "original", msgs[2].Content)
	assert.JSONEq(t, `{"a":2,"b":3}`, string(msgs[3].ToolCalls[0].Arguments))
}

func TestAfterToolCalls_HandlerCannotRewriteResults(t *testing.T) {
	p, _ := newPipeline(t, func(c *recorderConfig) {
		c.onInstall = func(ic *Interceptor[recorderState]) {
			ic.OnBeforeToolCalls(func(_ context.Context, _ *recorderState, e *BeforeToolCallsEvent) error {
				e.Calls[0].Name = "divide"
				return nil
			})
			ic.OnAfterToolCalls(func(_ context.Context, _ *recorderState, e *AfterToolCallsEvent) error {
				e.Results[0].Output[0] = '9'
				e.Results[0].Error = "tampered"
				return nil
			})
		}
	})
	ac := newTestContext(t, nil, nil, p)

	call := fixtures.PlusCall("call_1", 2, 3)
	res, err := ac.ExecuteTool(context.Background(), call)
	require.NoError(t, err)
	assert.Equal(t, "5", res.Content())
	assert.Equal(t, "plus", res.Name)
	assert.Equal(t, "plus", call.Name)
}

func TestRequestLLMMultipleReplies_FailureCancelsSiblings(t *testing.T) {
	boom := errors.New("upstream exploded")
	var n atomic.Int32
	exec := mocks.NewScriptedExecutor().WithHandler(func(ctx context.Context, _ mocks.ExecutorCall) ([]types.Message, error) {
		if n.Add(1) == 1 {
			return nil, boom
		}
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ac := newTestContext(t, exec, nil, nil)

	err := ac.LLM().WriteSession(context.Background(), func(s *WriteSession) error {
		_, err := s.RequestLLMMultipleReplies(3)
		return err
	})
	require.ErrorIs(t, err, boom)
}

func TestRequestLLMStreaming_OpenFailureLogsHandlerError(t *testing.T) {
	openErr := errors.New("stream refused")
	exec := mocks.NewScriptedExecutor().Fail(openErr)
	p, _ := newPipeline(t, func(c *recorderConfig) {
		c.onInstall = func(ic *Interceptor[recorderState]) {
			ic.OnAfterLLMCall(func(context.Context, *recorderState, *AfterLLMCallEvent) error {
				return errors.New("sink offline")
			})
		}
	})
	core, logs := observer.New(zap.WarnLevel)
	ac := NewContext(ContextParams{
		RunID:    "run-1",
		Strategy: "test",
		Config:   NewConfig("", llm.Model{Provider: "mock", ID: "mock-model"}),
		Executor: exec,
		Registry: mocks.CalculatorRegistry(),
		Pipeline: p,
		Logger:   zap.New(core),
	})

	err := ac.LLM().WriteSession(context.Background(), func(s *WriteSession) error {
		_, err := s.RequestLLMStreaming()
		return err
	})
	require.ErrorIs(t, err, openErr)
	entries := logs.FilterMessage("after-llm handler failed for stream").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].ContextMap()["error"], "sink offline")
}
