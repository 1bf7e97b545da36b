package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tokenizer"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// SummarizeInstruction is appended when history is replaced by a summary.
const SummarizeInstruction = "Summarize the conversation so far into a concise TL;DR that keeps every fact, decision " +
	"and open question needed to continue the task. Do not call tools."

// LLMContext owns the prompt, active tools and model of one Context. It is
// only accessed through sessions.
type LLMContext struct {
	mu       sync.RWMutex
	ac       *Context
	prompt   types.Prompt
	tools    *tools.Registry
	dynamic  bool
	model    llm.Model
	executor llm.PromptExecutor
}

func (l *LLMContext) fork(ac *Context) *LLMContext {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &LLMContext{
		ac:       ac,
		prompt:   l.prompt.Clone(),
		tools:    l.tools,
		dynamic:  l.dynamic,
		model:    l.model,
		executor: l.executor,
	}
}

func (l *LLMContext) adopt(other *LLMContext) {
	other.mu.RLock()
	prompt, reg, dynamic, model := other.prompt.Clone(), other.tools, other.dynamic, other.model
	other.mu.RUnlock()

	l.mu.Lock()
	l.prompt, l.tools, l.dynamic, l.model = prompt, reg, dynamic, model
	l.mu.Unlock()
}

func (l *LLMContext) toolState() (*tools.Registry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tools, l.dynamic
}

func (l *LLMContext) setToolState(reg *tools.Registry, dynamic bool) {
	l.mu.Lock()
	l.tools, l.dynamic = reg, dynamic
	l.mu.Unlock()
}

// ActiveTools returns the tools visible to the current stage.
func (l *LLMContext) ActiveTools() *tools.Registry {
	reg, _ := l.toolState()
	return reg
}

// ReadSession runs fn with shared access to the LLM state.
func (l *LLMContext) ReadSession(ctx context.Context, fn func(*ReadSession) error) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return fn(&ReadSession{ctx: ctx, l: l})
}

// WriteSession runs fn with exclusive access to the LLM state.
func (l *LLMContext) WriteSession(ctx context.Context, fn func(*WriteSession) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return fn(&WriteSession{ReadSession: ReadSession{ctx: ctx, l: l}})
}

// ReadSession inspects the prompt, tools and model.
type ReadSession struct {
	ctx context.Context
	l   *LLMContext
}

// Prompt returns a copy of the current prompt.
func (s *ReadSession) Prompt() types.Prompt { return s.l.prompt.Clone() }

func (s *ReadSession) Model() llm.Model { return s.l.model }

// Tools returns the descriptors of the active tools.
func (s *ReadSession) Tools() []tools.Descriptor { return s.l.tools.Descriptors() }

// TokenCount counts the prompt with tok.
func (s *ReadSession) TokenCount(tok tokenizer.Tokenizer) (int, error) {
	return tok.CountMessages(s.l.prompt.Messages)
}

// WriteSession mutates the prompt and issues model requests. Requests are
// wrapped by the before/after LLM call events of the pipeline.
type WriteSession struct {
	ReadSession
}

// 📝 Prompt 修改

// AppendPrompt appends messages in order.
func (s *WriteSession) AppendPrompt(msgs ...types.Message) {
	s.l.prompt.Messages = append(s.l.prompt.Messages, msgs...)
}

// ReplaceHistory replaces every message of the prompt.
func (s *WriteSession) ReplaceHistory(msgs []types.Message) {
	s.l.prompt.Messages = append([]types.Message(nil), msgs...)
}

// TrimToLastN keeps the system messages and the last n other messages. A
// Tool-Result left without its call at the cut is dropped as well.
func (s *WriteSession) TrimToLastN(n int) {
	msgs := s.l.prompt.Messages
	var system, rest []types.Message
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, m)
		} else {
			rest = append(rest, m)
		}
	}
	if n < 0 {
		n = 0
	}
	if len(rest) > n {
		rest = rest[len(rest)-n:]
	}
	for len(rest) > 0 && rest[0].IsToolResult() {
		rest = rest[1:]
	}
	s.l.prompt.Messages = append(system, rest...)
}

// UpdateParams edits the prompt parameters.
func (s *WriteSession) UpdateParams(fn func(*types.PromptParams)) {
	fn(&s.l.prompt.Params)
}

// SetModel switches the model for subsequent requests.
func (s *WriteSession) SetModel(m llm.Model) { s.l.model = m }

// SetTools restricts the active tools to names. Only allowed in a stage with
// a dynamic scope.
func (s *WriteSession) SetTools(names ...string) error {
	if !s.l.dynamic {
		return types.NewError(types.ErrToolScopeInvalid, fmt.Sprintf("stage %s has a static tool scope", s.l.ac.StageName()))
	}
	if len(names) == 0 {
		s.l.tools = tools.EmptyRegistry()
		return nil
	}
	reg, err := s.l.ac.registry.Subset(names...)
	if err != nil {
		return err
	}
	s.l.tools = reg
	return nil
}

// 🤖 模型请求

func (s *WriteSession) beforeEvent() *BeforeLLMCallEvent {
	node, _ := types.NodeName(s.ctx)
	return &BeforeLLMCallEvent{
		RunInfo: s.l.ac.Info(),
		Node:    node,
		Prompt:  s.l.prompt.Clone(),
		Model:   s.l.model,
		Tools:   s.l.tools.Descriptors(),
	}
}

// afterEvent hands handlers copies; the produced responses stay untouched.
func afterEvent(b *BeforeLLMCallEvent, responses []types.Message, err error) *AfterLLMCallEvent {
	return &AfterLLMCallEvent{
		RunInfo:   b.RunInfo,
		Node:      b.Node,
		Prompt:    b.Prompt.Clone(),
		Model:     b.Model,
		Tools:     b.Tools,
		Responses: types.CloneMessages(responses),
		Err:       err,
	}
}

func (s *WriteSession) executor() (llm.PromptExecutor, error) {
	if s.l.executor == nil {
		return nil, types.NewError(types.ErrModelNotFound, "no prompt executor configured")
	}
	return s.l.executor, nil
}

// executeWithTools is the single tool-enabled model call every request
// variant goes through.
func (s *WriteSession) executeWithTools(ctx context.Context, prompt types.Prompt) ([]types.Message, error) {
	exec, err := s.executor()
	if err != nil {
		return nil, err
	}
	p := s.l.ac.pipeline
	before := s.beforeEvent()
	before.Prompt = prompt.Clone()
	if err := p.BeforeLLMCallWithTools(ctx, before); err != nil {
		return nil, err
	}
	responses, err := exec.ExecuteWithTools(ctx, prompt, s.l.model, s.l.tools.Descriptors())
	if err == nil && len(responses) == 0 {
		err = types.NewError(types.ErrNoChoices, "model returned no response")
	}
	if aerr := p.AfterLLMCallWithTools(ctx, afterEvent(before, responses, err)); aerr != nil && err == nil {
		err = aerr
	}
	if err != nil {
		return nil, err
	}
	return responses, nil
}

// RequestLLM sends the prompt with the active tools, appends the first
// response and returns it.
func (s *WriteSession) RequestLLM() (types.Message, error) {
	responses, err := s.executeWithTools(s.ctx, s.l.prompt)
	if err != nil {
		return types.Message{}, err
	}
	s.AppendPrompt(responses[0])
	return responses[0], nil
}

// RequestLLMMultiple sends the prompt with the active tools and appends every
// response, e.g. several parallel Tool-Call messages.
func (s *WriteSession) RequestLLMMultiple() ([]types.Message, error) {
	responses, err := s.executeWithTools(s.ctx, s.l.prompt)
	if err != nil {
		return nil, err
	}
	s.AppendPrompt(responses...)
	return responses, nil
}

// RequestLLMWithoutTools sends the prompt without tools and appends the
// assistant reply.
func (s *WriteSession) RequestLLMWithoutTools() (types.Message, error) {
	text, err := s.executePlain(s.l.prompt)
	if err != nil {
		return types.Message{}, err
	}
	msg := types.NewAssistantMessage(text)
	s.AppendPrompt(msg)
	return msg, nil
}

func (s *WriteSession) executePlain(prompt types.Prompt) (string, error) {
	exec, err := s.executor()
	if err != nil {
		return "", err
	}
	p := s.l.ac.pipeline
	before := s.beforeEvent()
	before.Prompt = prompt.Clone()
	before.Tools = nil
	if err := p.BeforeLLMCall(s.ctx, before); err != nil {
		return "", err
	}
	text, err := exec.Execute(s.ctx, prompt, s.l.model)
	var responses []types.Message
	if err == nil {
		responses = []types.Message{types.NewAssistantMessage(text)}
	}
	if aerr := p.AfterLLMCall(s.ctx, afterEvent(before, responses, err)); aerr != nil && err == nil {
		err = aerr
	}
	return text, err
}

// RequestLLMMultipleChoices asks for prompt.Params.NumberOfChoices candidates
// in one request. Nothing is appended; pick one with a ChoiceStrategy.
func (s *WriteSession) RequestLLMMultipleChoices() ([]llm.Choice, error) {
	exec, err := s.executor()
	if err != nil {
		return nil, err
	}
	p := s.l.ac.pipeline
	before := s.beforeEvent()
	if err := p.BeforeLLMCallWithTools(s.ctx, before); err != nil {
		return nil, err
	}
	choices, err := exec.ExecuteMultipleChoices(s.ctx, s.l.prompt.Clone(), s.l.model, s.l.tools.Descriptors())
	if err == nil && len(choices) == 0 {
		err = types.NewError(types.ErrNoChoices, "model returned no choices")
	}
	var flat []types.Message
	for _, c := range choices {
		flat = append(flat, c...)
	}
	if aerr := p.AfterLLMCallWithTools(s.ctx, afterEvent(before, flat, err)); aerr != nil && err == nil {
		err = aerr
	}
	if err != nil {
		return nil, err
	}
	return choices, nil
}

// RequestLLMMultipleReplies issues n independent requests on the same prompt
// concurrently. Nothing is appended; pick one with a ReplyChoiceStrategy.
func (s *WriteSession) RequestLLMMultipleReplies(n int) ([]llm.Reply, error) {
	if n <= 0 {
		return nil, types.NewError(types.ErrNoChoices, "at least one reply must be requested")
	}
	prompt := s.l.prompt.Clone()
	replies := make([]llm.Reply, n)
	// 任一请求失败即取消其余请求
	g, gctx := errgroup.WithContext(s.ctx)
	for i := range n {
		g.Go(func() error {
			responses, err := s.executeWithTools(gctx, prompt)
			replies[i] = llm.Reply(responses)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return replies, nil
}

// RequestLLMWithChoiceSelection requests candidates, lets strategy pick one
// and appends only the chosen candidate's messages.
func (s *WriteSession) RequestLLMWithChoiceSelection(strategy ChoiceStrategy) (llm.Choice, error) {
	choices, err := s.RequestLLMMultipleChoices()
	if err != nil {
		return nil, err
	}
	chosen, err := strategy.Choose(s.ctx, s.l.prompt.Clone(), choices)
	if err != nil {
		return nil, err
	}
	s.AppendPrompt(chosen...)
	return chosen, nil
}

// RequestLLMWithReplySelection requests n replies, lets strategy pick one
// and appends only the chosen reply's messages.
func (s *WriteSession) RequestLLMWithReplySelection(n int, strategy ReplyChoiceStrategy) (llm.Reply, error) {
	replies, err := s.RequestLLMMultipleReplies(n)
	if err != nil {
		return nil, err
	}
	chosen, err := strategy.ChooseReply(s.ctx, s.l.prompt.Clone(), replies)
	if err != nil {
		return nil, err
	}
	s.AppendPrompt(chosen...)
	return chosen, nil
}

// RequestLLMStreaming streams a plain reply. The after-call event fires when
// the stream is drained. The streamed text is not appended: drain the
// channel inside the session and append the result.
func (s *WriteSession) RequestLLMStreaming() (<-chan llm.StreamChunk, error) {
	exec, err := s.executor()
	if err != nil {
		return nil, err
	}
	p := s.l.ac.pipeline
	before := s.beforeEvent()
	before.Tools = nil
	if err := p.BeforeLLMCall(s.ctx, before); err != nil {
		return nil, err
	}
	upstream, err := exec.ExecuteStreaming(s.ctx, s.l.prompt.Clone(), s.l.model)
	if err != nil {
		if aerr := p.AfterLLMCall(s.ctx, afterEvent(before, nil, err)); aerr != nil {
			s.l.ac.logger.Warn("after-llm handler failed for stream", zap.Error(aerr))
		}
		return nil, err
	}

	ctx := s.ctx
	logger := s.l.ac.logger
	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)
		var sb strings.Builder
		var streamErr error
		for chunk := range upstream {
			if chunk.Err != nil {
				streamErr = chunk.Err
			}
			sb.WriteString(chunk.Delta.Content)
			select {
			case out <- chunk:
			case <-ctx.Done():
				streamErr = ctx.Err()
			}
			if streamErr != nil {
				break
			}
		}
		var responses []types.Message
		if streamErr == nil {
			responses = []types.Message{types.NewAssistantMessage(sb.String())}
		}
		if err := p.AfterLLMCall(ctx, afterEvent(before, responses, streamErr)); err != nil {
			logger.Warn("after-llm handler failed for stream", zap.Error(err))
		}
	}()
	return out, nil
}

// CollectStream drains a stream into one assistant message. The first chunk
// error is returned.
func CollectStream(ch <-chan llm.StreamChunk) (types.Message, error) {
	var sb strings.Builder
	var err error
	for chunk := range ch {
		if chunk.Err != nil && err == nil {
			err = chunk.Err
		}
		sb.WriteString(chunk.Delta.Content)
	}
	if err != nil {
		return types.Message{}, err
	}
	return types.NewAssistantMessage(sb.String()), nil
}

// ReplaceHistoryWithSummary asks the model for a summary of the conversation
// without tools and replaces the history with the system messages followed by
// the summary.
func (s *WriteSession) ReplaceHistoryWithSummary() error {
	prompt := s.l.prompt.Append(types.NewUserMessage(SummarizeInstruction))
	summary, err := s.executePlain(prompt)
	if err != nil {
		return err
	}
	msgs := s.l.prompt.SystemMessages()
	msgs = append(msgs, types.NewAssistantMessage(summary))
	s.l.prompt.Messages = msgs
	return nil
}
