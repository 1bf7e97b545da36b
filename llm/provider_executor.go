package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// ProviderExecutor adapts one or more Providers to PromptExecutor. Requests
// are routed by Model.Provider; an empty provider name selects the first
// registered provider. Completion calls pass through the middleware chain.
type ProviderExecutor struct {
	providers map[string]Provider
	fallback  string
	chain     *Chain
	logger    *zap.Logger
}

var _ PromptExecutor = (*ProviderExecutor)(nil)

// NewProviderExecutor 创建基于 Provider 的执行器。
func NewProviderExecutor(logger *zap.Logger, providers ...Provider) *ProviderExecutor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &ProviderExecutor{
		providers: make(map[string]Provider, len(providers)),
		chain:     NewChain(),
		logger:    logger.With(zap.String("component", "provider_executor")),
	}
	for _, p := range providers {
		if e.fallback == "" {
			e.fallback = p.Name()
		}
		e.providers[p.Name()] = p
	}
	return e
}

// Use appends middleware to the completion chain.
func (e *ProviderExecutor) Use(m ...Middleware) *ProviderExecutor {
	for _, mw := range m {
		e.chain.Use(mw)
	}
	return e
}

func (e *ProviderExecutor) provider(model Model) (Provider, error) {
	name := model.Provider
	if name == "" {
		name = e.fallback
	}
	p, ok := e.providers[name]
	if !ok {
		return nil, types.NewError(types.ErrModelNotFound, fmt.Sprintf("no provider registered for model %s", model))
	}
	return p, nil
}

func (e *ProviderExecutor) buildRequest(ctx context.Context, prompt types.Prompt, model Model, descs []tools.Descriptor) (*ChatRequest, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}
	req := &ChatRequest{
		Model:       model.ID,
		Messages:    prompt.Messages,
		MaxTokens:   prompt.Params.MaxTokens,
		Temperature: prompt.Params.Temperature,
		Tools:       ToolSchemas(descs),
		ToolChoice:  string(prompt.Params.ToolChoice),
	}
	if traceID, ok := types.TraceID(ctx); ok {
		req.TraceID = traceID
	}
	return req, nil
}

func (e *ProviderExecutor) complete(ctx context.Context, p Provider, req *ChatRequest) (*ChatResponse, error) {
	resp, err := e.chain.Then(p.Completion)(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, types.NewError(types.ErrNoChoices, fmt.Sprintf("provider %s returned no choices", p.Name()))
	}
	return resp, nil
}

// Execute 返回第一个候选的文本；模型返回工具调用时视为协议错误。
func (e *ProviderExecutor) Execute(ctx context.Context, prompt types.Prompt, model Model) (string, error) {
	p, err := e.provider(model)
	if err != nil {
		return "", err
	}
	req, err := e.buildRequest(ctx, prompt, model, nil)
	if err != nil {
		return "", err
	}
	resp, err := e.complete(ctx, p, req)
	if err != nil {
		return "", err
	}
	msg := resp.Choices[0].Message
	if len(msg.ToolCalls) > 0 {
		return "", types.NewError(types.ErrUnexpectedMessage, "tool call returned for a request without tools")
	}
	return msg.Content, nil
}

func (e *ProviderExecutor) ExecuteWithTools(ctx context.Context, prompt types.Prompt, model Model, descs []tools.Descriptor) ([]types.Message, error) {
	p, err := e.provider(model)
	if err != nil {
		return nil, err
	}
	if len(descs) > 0 && (!model.Supports(CapabilityTools) || !p.SupportsNativeFunctionCalling()) {
		return nil, types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %s does not support tools", model))
	}
	req, err := e.buildRequest(ctx, prompt, model, descs)
	if err != nil {
		return nil, err
	}
	resp, err := e.complete(ctx, p, req)
	if err != nil {
		return nil, err
	}
	return SplitResponse(resp.Choices[0].Message), nil
}

// ExecuteMultipleChoices requests NumberOfChoices candidates. Models without
// native multiple choices are asked once per candidate.
func (e *ProviderExecutor) ExecuteMultipleChoices(ctx context.Context, prompt types.Prompt, model Model, descs []tools.Descriptor) ([]Choice, error) {
	p, err := e.provider(model)
	if err != nil {
		return nil, err
	}
	req, err := e.buildRequest(ctx, prompt, model, descs)
	if err != nil {
		return nil, err
	}
	n := max(prompt.Params.NumberOfChoices, 1)

	if model.Supports(CapabilityMultipleChoices) {
		req.N = n
		resp, err := e.complete(ctx, p, req)
		if err != nil {
			return nil, err
		}
		out := make([]Choice, 0, len(resp.Choices))
		for _, c := range resp.Choices {
			out = append(out, Choice(SplitResponse(c.Message)))
		}
		return out, nil
	}

	out := make([]Choice, 0, n)
	for range n {
		resp, err := e.complete(ctx, p, req)
		if err != nil {
			return nil, err
		}
		out = append(out, Choice(SplitResponse(resp.Choices[0].Message)))
	}
	return out, nil
}

func (e *ProviderExecutor) ExecuteStreaming(ctx context.Context, prompt types.Prompt, model Model) (<-chan StreamChunk, error) {
	p, err := e.provider(model)
	if err != nil {
		return nil, err
	}
	if !model.Supports(CapabilityStreaming) {
		return nil, types.NewError(types.ErrModelNotFound, fmt.Sprintf("model %s does not support streaming", model))
	}
	req, err := e.buildRequest(ctx, prompt, model, nil)
	if err != nil {
		return nil, err
	}
	e.logger.Debug("stream started", zap.String("model", model.ID))
	return p.Stream(ctx, req)
}

// SplitResponse turns a provider message into executor responses: the
// message itself when it is plain text, otherwise one Tool-Call message per
// call. Text accompanying tool calls stays on the first Tool-Call message.
// Calls without an id get a generated one.
func SplitResponse(msg types.Message) []types.Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	msg.Role = types.RoleAssistant
	if len(msg.ToolCalls) == 0 {
		return []types.Message{msg}
	}
	out := make([]types.Message, 0, len(msg.ToolCalls))
	for i, call := range msg.ToolCalls {
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		m := types.NewToolCallMessage(call)
		m.Timestamp = msg.Timestamp
		if i == 0 {
			m.Content = msg.Content
		}
		out = append(out, m)
	}
	return out
}
