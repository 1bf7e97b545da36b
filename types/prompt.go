package types

import "fmt"

// ToolChoice controls whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// PromptParams carries model request parameters.
type PromptParams struct {
	Temperature     float32    `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens       int        `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	NumberOfChoices int        `json:"number_of_choices,omitempty" yaml:"number_of_choices,omitempty"`
	ToolChoice      ToolChoice `json:"tool_choice,omitempty" yaml:"tool_choice,omitempty"`
}

// Prompt is an ordered, append-only-by-convention sequence of messages plus
// request parameters.
type Prompt struct {
	ID       string       `json:"id"`
	Messages []Message    `json:"messages"`
	Params   PromptParams `json:"params"`
}

// NewPrompt creates a prompt with the given id and messages.
func NewPrompt(id string, messages ...Message) Prompt {
	return Prompt{ID: id, Messages: messages}
}

// Clone returns a deep copy of the prompt.
func (p Prompt) Clone() Prompt {
	out := p
	out.Messages = make([]Message, len(p.Messages))
	for i, m := range p.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// Append returns a copy of p with msgs appended.
func (p Prompt) Append(msgs ...Message) Prompt {
	out := p.Clone()
	out.Messages = append(out.Messages, msgs...)
	return out
}

// SystemMessages returns the system messages in order.
func (p Prompt) SystemMessages() []Message {
	var out []Message
	for _, m := range p.Messages {
		if m.Role == RoleSystem {
			out = append(out, m)
		}
	}
	return out
}

// Last returns the last message if any.
func (p Prompt) Last() Option[Message] {
	if len(p.Messages) == 0 {
		return Absent[Message]()
	}
	return Present(p.Messages[len(p.Messages)-1])
}

// Validate checks that every Tool-Result references a prior Tool-Call id.
// Providers match results to calls by id, so a dangling result invalidates
// the whole request.
func (p Prompt) Validate() error {
	seen := make(map[string]struct{})
	for i, m := range p.Messages {
		switch {
		case m.IsToolCall():
			for _, c := range m.ToolCalls {
				if c.ID == "" {
					return NewError(ErrMalformedMessage, fmt.Sprintf("message %d: tool call %q has no id", i, c.Name))
				}
				seen[c.ID] = struct{}{}
			}
		case m.IsToolResult():
			if _, ok := seen[m.ToolCallID]; !ok {
				return NewError(ErrMalformedMessage,
					fmt.Sprintf("message %d: tool result references unknown call id %q", i, m.ToolCallID))
			}
		}
	}
	return nil
}
