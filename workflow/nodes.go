package workflow

import (
	"context"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// ============================================================
// LLM nodes
// ============================================================

// appendInput adds the node input as a user message. An empty input adds
// nothing so that a node can be re-entered on the existing prompt.
func appendInput(s *agent.WriteSession, in string) {
	if in != "" {
		s.AppendPrompt(types.NewUserMessage(in))
	}
}

// NodeLLMRequest appends the input as a user message, calls the model with
// the active tools and returns the first response.
func NodeLLMRequest(name string) *Node[string, types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msg types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			msg, err = s.RequestLLM()
			return err
		})
		return msg, err
	})
}

// NodeLLMRequestMultiple is NodeLLMRequest keeping every response, e.g.
// several parallel Tool-Call messages.
func NodeLLMRequestMultiple(name string) *Node[string, []types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msgs []types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			msgs, err = s.RequestLLMMultiple()
			return err
		})
		return msgs, err
	})
}

// NodeLLMRequestWithoutTools calls the model without tools.
func NodeLLMRequestWithoutTools(name string) *Node[string, types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msg types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			msg, err = s.RequestLLMWithoutTools()
			return err
		})
		return msg, err
	})
}

// NodeLLMRequestStreaming streams a plain reply, passing every chunk to
// onChunk when set, and appends the assembled assistant message.
func NodeLLMRequestStreaming(name string, onChunk func(llm.StreamChunk)) *Node[string, types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msg types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			ch, err := s.RequestLLMStreaming()
			if err != nil {
				return err
			}
			if onChunk != nil {
				ch = tee(ch, onChunk)
			}
			msg, err = agent.CollectStream(ch)
			if err != nil {
				return err
			}
			s.AppendPrompt(msg)
			return nil
		})
		return msg, err
	})
}

func tee(in <-chan llm.StreamChunk, fn func(llm.StreamChunk)) <-chan llm.StreamChunk {
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		for chunk := range in {
			fn(chunk)
			out <- chunk
		}
	}()
	return out
}

// NodeLLMRequestWithChoice requests several candidates, lets strategy pick
// one and keeps only the chosen candidate in the prompt.
func NodeLLMRequestWithChoice(name string, strategy agent.ChoiceStrategy) *Node[string, []types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msgs []types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			chosen, err := s.RequestLLMWithChoiceSelection(strategy)
			msgs = []types.Message(chosen)
			return err
		})
		return msgs, err
	})
}

// NodeLLMRequestWithReply issues n independent requests, lets strategy pick
// one reply and keeps only that reply in the prompt.
func NodeLLMRequestWithReply(name string, n int, strategy agent.ReplyChoiceStrategy) *Node[string, []types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (msgs []types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			chosen, err := s.RequestLLMWithReplySelection(n, strategy)
			msgs = []types.Message(chosen)
			return err
		})
		return msgs, err
	})
}

// NodeLLMRequestStructured asks for a JSON value shaped like example.
func NodeLLMRequestStructured[T any](name string, example T) *Node[string, T] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in string) (v T, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			appendInput(s, in)
			v, err = agent.RequestStructured(s, example)
			return err
		})
		return v, err
	})
}

// ============================================================
// Tool nodes
// ============================================================

// NodeExecuteTool dispatches one tool call.
func NodeExecuteTool(name string) *Node[types.ToolCall, tools.Result] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, call types.ToolCall) (tools.Result, error) {
		return ac.ExecuteTool(ctx, call)
	})
}

// NodeExecuteMultipleTools dispatches a batch of calls, concurrently when
// parallel is set. Results keep call order.
func NodeExecuteMultipleTools(name string, parallel bool) *Node[[]types.ToolCall, []tools.Result] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, calls []types.ToolCall) ([]tools.Result, error) {
		return ac.ExecuteTools(ctx, calls, parallel)
	})
}

// NodeLLMSendToolResult appends a Tool-Result message and asks the model
// again.
func NodeLLMSendToolResult(name string) *Node[tools.Result, types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, res tools.Result) (msg types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			s.AppendPrompt(res.Message())
			msg, err = s.RequestLLM()
			return err
		})
		return msg, err
	})
}

// NodeLLMSendMultipleToolResults appends every Tool-Result in order and asks
// the model again, keeping all responses.
func NodeLLMSendMultipleToolResults(name string) *Node[[]tools.Result, []types.Message] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, results []tools.Result) (msgs []types.Message, err error) {
		err = ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			for _, r := range results {
				s.AppendPrompt(r.Message())
			}
			msgs, err = s.RequestLLMMultiple()
			return err
		})
		return msgs, err
	})
}

// ============================================================
// Prompt nodes
// ============================================================

// NodeAppendPrompt appends the messages built from the input and passes the
// input through.
func NodeAppendPrompt[T any](name string, build func(in T) []types.Message) *Node[T, T] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in T) (T, error) {
		err := ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			s.AppendPrompt(build(in)...)
			return nil
		})
		return in, err
	})
}

// NodeLLMCompressHistory replaces the history with a model-written summary
// and passes the input through.
func NodeLLMCompressHistory[T any](name string) *Node[T, T] {
	return NewNode(name, func(ctx context.Context, ac *agent.Context, in T) (T, error) {
		err := ac.LLM().WriteSession(ctx, func(s *agent.WriteSession) error {
			return s.ReplaceHistoryWithSummary()
		})
		return in, err
	})
}

// NodeDoNothing passes its input through.
func NodeDoNothing[T any](name string) *Node[T, T] {
	return NewNode(name, func(_ context.Context, _ *agent.Context, in T) (T, error) {
		return in, nil
	})
}

// ============================================================
// Subgraphs
// ============================================================

type subgraphOptions struct {
	scope *tools.Scope
}

// SubgraphOption configures Subgraph.
type SubgraphOption func(*subgraphOptions)

// WithSubgraphTools overrides the strategy's tool scope for this subgraph.
func WithSubgraphTools(scope tools.Scope) SubgraphOption {
	return func(o *subgraphOptions) { o.scope = &scope }
}

// Subgraph runs s as a single node in its own stage. Prompt changes made
// inside the subgraph persist; the tool set and stage-scoped features are
// restored when it finishes.
func Subgraph[I, O any](name string, s *Strategy[I, O], opts ...SubgraphOption) *Node[I, O] {
	o := subgraphOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	scope := s.scope
	if o.scope != nil {
		scope = *o.scope
	}

	n := NewNode(name, func(ctx context.Context, ac *agent.Context, in I) (O, error) {
		var zero O
		restore, err := ac.EnterStage(name, scope)
		if err != nil {
			return zero, err
		}
		defer restore()

		out, err := s.traverse(types.WithStageName(ctx, name), ac, in)
		if err != nil {
			return zero, err
		}
		return assertInput[O](name, out)
	})
	n.validate = func(reg *tools.Registry) error {
		if scope.IsStatic() {
			if _, err := scope.Resolve(reg); err != nil {
				return types.NewError(types.GetErrorCode(err), "subgraph tool scope is invalid").
					WithNode(name).WithCause(err)
			}
		}
		return s.ValidateTools(reg)
	}
	return n
}

// ============================================================
// Ready-made strategies
// ============================================================

// SingleRunStrategy is the canonical tool loop: ask the model, execute each
// requested tool, send the result back, and finish on the first assistant
// text.
func SingleRunStrategy() *Strategy[string, string] {
	b := NewStrategy[string, string]("single_run")
	callLLM := NodeLLMRequest("call_llm")
	executeTool := NodeExecuteTool("execute_tool")
	sendResult := NodeLLMSendToolResult("send_tool_result")

	b.AddEdge(
		To(From(b.Start()), callLLM),
		To(OnToolCall(From(callLLM)), executeTool),
		To(OnAssistantMessage(From(callLLM)), b.Finish()),
		To(From(executeTool), sendResult),
		To(OnToolCall(From(sendResult)), executeTool),
		To(OnAssistantMessage(From(sendResult)), b.Finish()),
	)
	return b.MustBuild()
}

// ParallelToolsStrategy is SingleRunStrategy for models that issue several
// tool calls per turn. With parallel set, each batch runs concurrently.
func ParallelToolsStrategy(parallel bool) *Strategy[string, string] {
	b := NewStrategy[string, string]("parallel_tools")
	callLLM := NodeLLMRequestMultiple("call_llm")
	executeTools := NodeExecuteMultipleTools("execute_tools", parallel)
	sendResults := NodeLLMSendMultipleToolResults("send_tool_results")

	finalText := func(texts []string) string { return texts[len(texts)-1] }
	b.AddEdge(
		To(From(b.Start()), callLLM),
		To(OnMultipleToolCalls(From(callLLM)), executeTools),
		To(Map(OnMultipleAssistantMessages(From(callLLM)), finalText), b.Finish()),
		To(From(executeTools), sendResults),
		To(OnMultipleToolCalls(From(sendResults)), executeTools),
		To(Map(OnMultipleAssistantMessages(From(sendResults)), finalText), b.Finish()),
	)
	return b.MustBuild()
}
