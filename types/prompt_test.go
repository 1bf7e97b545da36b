package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompt_ValidateToolResultOrdering(t *testing.T) {
	call := ToolCall{ID: "call_1", Name: "plus", Arguments: json.RawMessage(`{"a":2,"b":3}`)}

	ok := NewPrompt("p",
		NewSystemMessage("sys"),
		NewUserMessage("add"),
		NewToolCallMessage(call),
		NewToolMessage("call_1", "plus", "5"),
	)
	require.NoError(t, ok.Validate())

	dangling := NewPrompt("p",
		NewUserMessage("add"),
		NewToolMessage("call_1", "plus", "5"),
	)
	err := dangling.Validate()
	require.Error(t, err)
	assert.True(t, IsCode(err, ErrMalformedMessage))

	noID := NewPrompt("p", NewToolCallMessage(ToolCall{Name: "plus"}))
	assert.True(t, IsCode(noID.Validate(), ErrMalformedMessage))
}

func TestPrompt_CloneDoesNotShare(t *testing.T) {
	call := ToolCall{ID: "c", Name: "x", Arguments: json.RawMessage(`{}`)}
	p := NewPrompt("p", NewToolCallMessage(call))

	c := p.Clone()
	c.Messages[0].ToolCalls[0].Name = "changed"
	c.Messages = append(c.Messages, NewUserMessage("more"))

	assert.Equal(t, "x", p.Messages[0].ToolCalls[0].Name)
	assert.Len(t, p.Messages, 1)

	appended := p.Append(NewUserMessage("u"))
	assert.Len(t, appended.Messages, 2)
	assert.Len(t, p.Messages, 1)
}

func TestCloneMessages(t *testing.T) {
	msgs := []Message{NewToolCallMessage(ToolCall{ID: "c", Name: "x", Arguments: json.RawMessage(`{"a":1}`)})}
	cp := CloneMessages(msgs)
	cp[0].Content = "changed"
	cp[0].ToolCalls[0].Arguments[0] = '['
	assert.Empty(t, msgs[0].Content)
	assert.JSONEq(t, `{"a":1}`, string(msgs[0].ToolCalls[0].Arguments))

	calls := CloneToolCalls(msgs[0].ToolCalls)
	calls[0].Name = "y"
	assert.Equal(t, "x", msgs[0].ToolCalls[0].Name)
	assert.Nil(t, CloneMessages(nil))
	assert.Nil(t, CloneToolCalls(nil))
}

func TestPrompt_SystemMessagesAndLast(t *testing.T) {
	p := NewPrompt("p", NewSystemMessage("a"), NewUserMessage("b"), NewSystemMessage("c"))
	sys := p.SystemMessages()
	require.Len(t, sys, 2)
	assert.Equal(t, "c", sys[1].Content)

	last, ok := p.Last().Get()
	require.True(t, ok)
	assert.Equal(t, "c", last.Content)
	assert.False(t, NewPrompt("empty").Last().IsPresent())
}

func TestMessage_Kinds(t *testing.T) {
	assert.True(t, NewToolCallMessage(ToolCall{ID: "1"}).IsToolCall())
	assert.False(t, NewToolCallMessage(ToolCall{ID: "1"}).IsAssistantText())
	assert.True(t, NewAssistantMessage("hi").IsAssistantText())
	assert.True(t, NewToolMessage("1", "t", "r").IsToolResult())
	assert.False(t, NewUserMessage("u").IsToolCall())
}
