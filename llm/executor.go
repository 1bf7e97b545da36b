package llm

import (
	"context"
	"slices"

	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// Capability is an optional model feature.
type Capability string

const (
	CapabilityTools           Capability = "tools"
	CapabilityMultipleChoices Capability = "multiple_choices"
	CapabilityStreaming       Capability = "streaming"
)

// Model identifies a model served by a named provider.
type Model struct {
	Provider      string       `json:"provider" yaml:"provider"`
	ID            string       `json:"id" yaml:"id"`
	Capabilities  []Capability `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	ContextLength int          `json:"context_length,omitempty" yaml:"context_length,omitempty"`
}

// Supports reports whether m declares c. A model without declared
// capabilities is assumed to support everything.
func (m Model) Supports(c Capability) bool {
	return len(m.Capabilities) == 0 || slices.Contains(m.Capabilities, c)
}

func (m Model) String() string {
	if m.Provider == "" {
		return m.ID
	}
	return m.Provider + "/" + m.ID
}

// Choice is one candidate response: an assistant text message or one or
// more Tool-Call messages.
type Choice []types.Message

// Reply is the complete response of one independent request.
type Reply []types.Message

// PromptExecutor is the provider-agnostic model contract the execution core
// consumes.
type PromptExecutor interface {
	// Execute 返回纯文本回复
	Execute(ctx context.Context, prompt types.Prompt, model Model) (string, error)

	// ExecuteWithTools 返回一条 assistant 消息或若干 Tool-Call 消息
	ExecuteWithTools(ctx context.Context, prompt types.Prompt, model Model, descs []tools.Descriptor) ([]types.Message, error)

	// ExecuteMultipleChoices 一次请求返回 prompt.Params.NumberOfChoices 个候选
	ExecuteMultipleChoices(ctx context.Context, prompt types.Prompt, model Model, descs []tools.Descriptor) ([]Choice, error)

	// ExecuteStreaming 返回有限、不可重放的增量通道；出错时最后一帧带 Err
	ExecuteStreaming(ctx context.Context, prompt types.Prompt, model Model) (<-chan StreamChunk, error)
}
