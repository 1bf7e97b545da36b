package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/BaSui01/agentgraph/types"
)

// Tokenizer counts tokens of prompts for budget checks and history
// compression decisions.
type Tokenizer interface {
	// CountTokens 返回给定文本的 token 数
	CountTokens(text string) (int, error)

	// CountMessages 返回消息列表的总 token 数，包括每条消息的角色与分隔符开销，
	// Tool-Call 消息按工具名与参数计数
	CountMessages(messages []types.Message) (int, error)

	// MaxTokens 返回模型的最大上下文长度
	MaxTokens() int

	Name() string
}

// 每条消息与整段对话的固定开销
const (
	messageOverhead      = 4
	conversationOverhead = 3
)

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register 为模型名注册分词器
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// Lookup 返回模型的分词器；精确匹配优先，其次取最长前缀匹配
// （"gpt-4o" 匹配 "gpt-4o-mini-2024"）。
func Lookup(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	var best Tokenizer
	bestLen := 0
	for prefix, t := range modelTokenizers {
		if strings.HasPrefix(model, prefix) && len(prefix) > bestLen {
			best, bestLen = t, len(prefix)
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no tokenizer registered for model %q", model)
	}
	return best, nil
}

// ForModel returns the registered tokenizer of model, falling back to the
// estimator.
func ForModel(model string) Tokenizer {
	t, err := Lookup(model)
	if err != nil {
		return NewEstimator(model, 0)
	}
	return t
}

// countMessages sums count over the text segments of every message.
func countMessages(messages []types.Message, count func(string) int) int {
	total := 0
	for _, m := range messages {
		total += messageOverhead + count(string(m.Role)) + count(m.Content)
		for _, c := range m.ToolCalls {
			total += count(c.Name) + count(string(c.Arguments))
		}
	}
	return total + conversationOverhead
}
