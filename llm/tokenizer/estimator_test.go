package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentgraph/types"
)

func TestEstimator_CountTokens(t *testing.T) {
	e := NewEstimator("local", 0)
	assert.Equal(t, 4096, e.MaxTokens())

	n, err := e.CountTokens("")
	require.NoError(t, err)
	assert.Zero(t, n)

	n, _ = e.CountTokens("abcdefgh")
	assert.Equal(t, 2, n)

	n, _ = e.CountTokens("a")
	assert.Equal(t, 1, n, "non-empty text counts at least one token")

	n, _ = e.CountTokens("你好世界")
	assert.Equal(t, 2, n)
}

func TestEstimator_CountMessagesIncludesToolCalls(t *testing.T) {
	e := NewEstimator("local", 0)
	plain := []types.Message{types.NewUserMessage("question")}
	withCall := append(plain, types.NewToolCallMessage(types.ToolCall{ID: "1", Name: "plus", Arguments: []byte(`{"a":2,"b":3}`)}))

	a, err := e.CountMessages(plain)
	require.NoError(t, err)
	b, err := e.CountMessages(withCall)
	require.NoError(t, err)
	assert.Greater(t, b, a+messageOverhead)
}

func TestLookup_LongestPrefix(t *testing.T) {
	short := NewEstimator("short", 10)
	long := NewEstimator("long", 20)
	Register("test-model", short)
	Register("test-model-large", long)

	got, err := Lookup("test-model-large-2025")
	require.NoError(t, err)
	assert.Same(t, long, got)

	_, err = Lookup("unknown-model")
	assert.Error(t, err)
	assert.Equal(t, "estimator", ForModel("unknown-model").Name())
}

func TestNewTiktoken_EncodingSelection(t *testing.T) {
	assert.Equal(t, "tiktoken[o200k_base]", NewTiktoken("gpt-4o-mini-2024-07-18").Name())
	assert.Equal(t, 8192, NewTiktoken("gpt-4").MaxTokens())
	assert.Equal(t, "tiktoken[cl100k_base]", NewTiktoken("some-other").Name())
}
