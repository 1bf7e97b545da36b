// Package types provides core types used across the agentgraph framework.
// This package has ZERO dependencies on other agentgraph packages to avoid circular imports.
package types

import (
	"encoding/json"
	"time"
)

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message represents a conversation message.
//
// An assistant message with ToolCalls is a Tool-Call message; a tool message
// is a Tool-Result and must carry the ToolCallID of an earlier call.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Metadata   any        `json:"metadata,omitempty"`
	Timestamp  time.Time  `json:"timestamp,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NewToolCallMessage creates an assistant message that requests tool calls.
func NewToolCallMessage(calls ...ToolCall) Message {
	m := NewMessage(RoleAssistant, "")
	m.ToolCalls = calls
	return m
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(toolCallID, name, content string) Message {
	return Message{
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
		Timestamp:  time.Now(),
	}
}

// IsToolCall reports whether m is an assistant message requesting tools.
func (m Message) IsToolCall() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// IsAssistantText reports whether m is a plain assistant reply.
func (m Message) IsAssistantText() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) == 0
}

// IsToolResult reports whether m is a tool result message.
func (m Message) IsToolResult() bool {
	return m.Role == RoleTool
}

// Clone returns a copy of m that does not share the ToolCalls slice.
func (m Message) Clone() Message {
	if len(m.ToolCalls) > 0 {
		calls := make([]ToolCall, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			calls[i] = c
			if c.Arguments != nil {
				calls[i].Arguments = append(json.RawMessage(nil), c.Arguments...)
			}
		}
		m.ToolCalls = calls
	}
	return m
}

// CloneMessages deep-copies msgs with Message.Clone.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// CloneToolCalls deep-copies calls including their arguments.
func CloneToolCalls(calls []ToolCall) []ToolCall {
	if calls == nil {
		return nil
	}
	return Message{ToolCalls: calls}.Clone().ToolCalls
}

// WithToolCalls adds tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}

// WithMetadata adds metadata to the message.
func (m Message) WithMetadata(metadata any) Message {
	m.Metadata = metadata
	return m
}
