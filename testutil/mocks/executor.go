// ScriptedExecutor 的 PromptExecutor 测试模拟实现。
//
// 按脚本顺序返回预设回复，并记录每次收到的 Prompt。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// ErrScriptExhausted is returned once every scripted step is consumed and no
// fallback handler is set.
var ErrScriptExhausted = errors.New("mock executor: script exhausted")

// --- 脚本结构 ---

// Step is one scripted model response.
type Step struct {
	Messages []types.Message
	Choices  []llm.Choice
	Err      error
}

// ExecutorCall records one request.
type ExecutorCall struct {
	Method string
	Prompt types.Prompt
	Model  llm.Model
	Tools  []string
}

// ScriptedExecutor implements llm.PromptExecutor by replaying steps in order.
type ScriptedExecutor struct {
	mu       sync.Mutex
	script   []Step
	handler  func(ctx context.Context, call ExecutorCall) ([]types.Message, error)
	calls    []ExecutorCall
	nextCall int
}

var _ llm.PromptExecutor = (*ScriptedExecutor)(nil)

// --- 构造函数和 Builder 方法 ---

// NewScriptedExecutor 创建空脚本的执行器
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{}
}

// Reply 追加一条 assistant 文本回复
func (m *ScriptedExecutor) Reply(text string) *ScriptedExecutor {
	return m.Then(Step{Messages: []types.Message{types.NewAssistantMessage(text)}})
}

// ToolCall 追加一条只含一个调用的 Tool-Call 回复；args 为 JSON 文本
func (m *ScriptedExecutor) ToolCall(name, args string) *ScriptedExecutor {
	m.mu.Lock()
	call := m.newCall(name, args)
	m.mu.Unlock()
	return m.Then(Step{Messages: []types.Message{types.NewToolCallMessage(call)}})
}

// ParallelToolCalls 追加一次回复，其中每个调用各占一条 Tool-Call 消息
func (m *ScriptedExecutor) ParallelToolCalls(calls ...types.ToolCall) *ScriptedExecutor {
	msgs := make([]types.Message, len(calls))
	m.mu.Lock()
	for i, c := range calls {
		if c.ID == "" {
			c.ID = m.newCall(c.Name, "").ID
		}
		msgs[i] = types.NewToolCallMessage(c)
	}
	m.mu.Unlock()
	return m.Then(Step{Messages: msgs})
}

// Choices 追加一次多候选回复
func (m *ScriptedExecutor) Choices(choices ...llm.Choice) *ScriptedExecutor {
	return m.Then(Step{Choices: choices})
}

// Fail 追加一次失败
func (m *ScriptedExecutor) Fail(err error) *ScriptedExecutor {
	return m.Then(Step{Err: err})
}

// Then 追加任意步骤
func (m *ScriptedExecutor) Then(steps ...Step) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, steps...)
	return m
}

// WithHandler 设置脚本耗尽后的回退处理函数
func (m *ScriptedExecutor) WithHandler(fn func(ctx context.Context, call ExecutorCall) ([]types.Message, error)) *ScriptedExecutor {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handler = fn
	return m
}

func (m *ScriptedExecutor) newCall(name, args string) types.ToolCall {
	m.nextCall++
	if args == "" {
		args = "{}"
	}
	return types.ToolCall{ID: fmt.Sprintf("call_%d", m.nextCall), Name: name, Arguments: json.RawMessage(args)}
}

// --- PromptExecutor 接口实现 ---

func (m *ScriptedExecutor) next(ctx context.Context, method string, prompt types.Prompt, model llm.Model, descs []tools.Descriptor) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	call := ExecutorCall{Method: method, Prompt: prompt.Clone(), Model: model}
	for _, d := range descs {
		call.Tools = append(call.Tools, d.Name)
	}

	m.mu.Lock()
	m.calls = append(m.calls, call)
	if len(m.script) > 0 {
		step := m.script[0]
		m.script = m.script[1:]
		m.mu.Unlock()
		return step, step.Err
	}
	handler := m.handler
	m.mu.Unlock()

	if handler == nil {
		return Step{}, ErrScriptExhausted
	}
	msgs, err := handler(ctx, call)
	return Step{Messages: msgs, Err: err}, err
}

// Execute 返回下一步的文本内容
func (m *ScriptedExecutor) Execute(ctx context.Context, prompt types.Prompt, model llm.Model) (string, error) {
	step, err := m.next(ctx, "execute", prompt, model, nil)
	if err != nil {
		return "", err
	}
	msgs := step.Messages
	if len(msgs) == 0 && len(step.Choices) > 0 {
		msgs = step.Choices[0]
	}
	if len(msgs) == 0 {
		return "", nil
	}
	if msgs[0].IsToolCall() {
		return "", types.NewError(types.ErrUnexpectedMessage, "scripted tool call for a plain request")
	}
	return msgs[0].Content, nil
}

// ExecuteWithTools 返回下一步的消息
func (m *ScriptedExecutor) ExecuteWithTools(ctx context.Context, prompt types.Prompt, model llm.Model, descs []tools.Descriptor) ([]types.Message, error) {
	step, err := m.next(ctx, "execute_with_tools", prompt, model, descs)
	if err != nil {
		return nil, err
	}
	if len(step.Messages) == 0 && len(step.Choices) > 0 {
		return types.CloneMessages(step.Choices[0]), nil
	}
	return types.CloneMessages(step.Messages), nil
}

// ExecuteMultipleChoices 返回下一步的候选；普通步骤视为单个候选
func (m *ScriptedExecutor) ExecuteMultipleChoices(ctx context.Context, prompt types.Prompt, model llm.Model, descs []tools.Descriptor) ([]llm.Choice, error) {
	step, err := m.next(ctx, "execute_multiple_choices", prompt, model, descs)
	if err != nil {
		return nil, err
	}
	if len(step.Choices) == 0 {
		return []llm.Choice{types.CloneMessages(step.Messages)}, nil
	}
	out := make([]llm.Choice, len(step.Choices))
	for i, c := range step.Choices {
		out[i] = types.CloneMessages(c)
	}
	return out, nil
}

// ExecuteStreaming 将下一步文本按空格切分为多个增量帧
func (m *ScriptedExecutor) ExecuteStreaming(ctx context.Context, prompt types.Prompt, model llm.Model) (<-chan llm.StreamChunk, error) {
	step, err := m.next(ctx, "execute_streaming", prompt, model, nil)
	if err != nil {
		return nil, err
	}
	var text string
	if len(step.Messages) > 0 {
		text = step.Messages[0].Content
	}
	words := strings.SplitAfter(text, " ")
	ch := make(chan llm.StreamChunk, len(words))
	for i, w := range words {
		chunk := llm.StreamChunk{ID: "mock-stream", Model: model.ID, Index: i, Delta: types.Message{Role: types.RoleAssistant, Content: w}}
		if i == len(words)-1 {
			chunk.FinishReason = "stop"
		}
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

// --- 查询方法 ---

// Calls 返回所有请求记录
func (m *ScriptedExecutor) Calls() []ExecutorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ExecutorCall(nil), m.calls...)
}

// CallCount 返回请求次数
func (m *ScriptedExecutor) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// LastPrompt 返回最后一次请求的 Prompt
func (m *ScriptedExecutor) LastPrompt() (types.Prompt, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return types.Prompt{}, false
	}
	return m.calls[len(m.calls)-1].Prompt, true
}

// Remaining 返回尚未消费的步骤数
func (m *ScriptedExecutor) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.script)
}
