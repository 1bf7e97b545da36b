package workflow

import (
	"context"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// =============================================================================
// 🔀 Edge helpers
// =============================================================================

// OnToolCall matches Tool-Call messages and forwards the first call.
func OnToolCall[O any](f *Forward[O, types.Message]) *Forward[O, types.ToolCall] {
	return FlatMap(f, func(_ context.Context, _ *agent.Context, m types.Message) types.Option[types.ToolCall] {
		if !m.IsToolCall() {
			return types.Absent[types.ToolCall]()
		}
		return types.Present(m.ToolCalls[0])
	})
}

// OnMultipleToolCalls matches responses containing at least one Tool-Call
// message and forwards every call in order.
func OnMultipleToolCalls[O any](f *Forward[O, []types.Message]) *Forward[O, []types.ToolCall] {
	return FlatMap(f, func(_ context.Context, _ *agent.Context, msgs []types.Message) types.Option[[]types.ToolCall] {
		var calls []types.ToolCall
		for _, m := range msgs {
			if m.IsToolCall() {
				calls = append(calls, m.ToolCalls...)
			}
		}
		if len(calls) == 0 {
			return types.Absent[[]types.ToolCall]()
		}
		return types.Present(calls)
	})
}

// OnAssistantMessage matches assistant text and forwards its content.
func OnAssistantMessage[O any](f *Forward[O, types.Message]) *Forward[O, string] {
	return FlatMap(f, func(_ context.Context, _ *agent.Context, m types.Message) types.Option[string] {
		if !m.IsAssistantText() {
			return types.Absent[string]()
		}
		return types.Present(m.Content)
	})
}

// OnMultipleAssistantMessages matches responses made only of assistant
// text and forwards their contents.
func OnMultipleAssistantMessages[O any](f *Forward[O, []types.Message]) *Forward[O, []string] {
	return FlatMap(f, func(_ context.Context, _ *agent.Context, msgs []types.Message) types.Option[[]string] {
		if len(msgs) == 0 {
			return types.Absent[[]string]()
		}
		out := make([]string, 0, len(msgs))
		for _, m := range msgs {
			if !m.IsAssistantText() {
				return types.Absent[[]string]()
			}
			out = append(out, m.Content)
		}
		return types.Present(out)
	})
}

// OnToolResult matches results produced by the named tool.
func OnToolResult[O any](f *Forward[O, tools.Result], name string) *Forward[O, tools.Result] {
	return f.When(func(r tools.Result) bool { return r.Name == name })
}

// OnToolFailed matches results whose handler returned an error.
func OnToolFailed[O any](f *Forward[O, tools.Result]) *Forward[O, tools.Result] {
	return f.When(func(r tools.Result) bool { return r.Error != "" })
}

// OnEqual matches payloads equal to v.
func OnEqual[O any, T comparable](f *Forward[O, T], v T) *Forward[O, T] {
	return f.When(func(got T) bool { return got == v })
}
