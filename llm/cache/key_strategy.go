package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// 请求方法，参与缓存键计算
const (
	MethodExecute = "execute"
	MethodTools   = "tools"
	MethodChoices = "choices"
)

// Request is what a cache key is derived from. Prompt.ID is ignored so that
// runs sharing the same conversation share entries.
type Request struct {
	Method string
	Model  llm.Model
	Prompt types.Prompt
	Tools  []tools.Descriptor
}

// KeyStrategy 缓存键生成策略接口
type KeyStrategy interface {
	GenerateKey(req Request) string
	// Name 返回策略名称（用于日志和调试）
	Name() string
}

// KeyStrategyByName returns "hash" or "hierarchical"; anything else falls
// back to hash.
func KeyStrategyByName(name string) KeyStrategy {
	if name == "hierarchical" {
		return HierarchicalKeyStrategy{}
	}
	return HashKeyStrategy{}
}

func digest(v any, n int) string {
	data, err := json.Marshal(v)
	if err != nil {
		// 确定性回退，避免 key 碰撞
		data = []byte(fmt.Sprintf("%#v", v))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:n])
}

// keyMessage drops the fields that differ between otherwise identical
// conversations: timestamps, metadata and call ids.
type keyMessage struct {
	Role      types.Role    `json:"role"`
	Content   string        `json:"content,omitempty"`
	Name      string        `json:"name,omitempty"`
	ToolCalls []keyToolCall `json:"tool_calls,omitempty"`
}

type keyToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

func normalize(msgs []types.Message) []keyMessage {
	out := make([]keyMessage, len(msgs))
	for i, m := range msgs {
		km := keyMessage{Role: m.Role, Content: m.Content, Name: m.Name}
		for _, c := range m.ToolCalls {
			km.ToolCalls = append(km.ToolCalls, keyToolCall{Name: c.Name, Arguments: c.Arguments})
		}
		out[i] = km
	}
	return out
}

type keyMaterial struct {
	Method   string             `json:"method"`
	Model    string             `json:"model"`
	Messages []keyMessage       `json:"messages"`
	Params   types.PromptParams `json:"params"`
	Tools    []tools.Descriptor `json:"tools,omitempty"`
}

func material(req Request, msgs []types.Message) keyMaterial {
	return keyMaterial{
		Method:   req.Method,
		Model:    req.Model.String(),
		Messages: normalize(msgs),
		Params:   req.Prompt.Params,
		Tools:    req.Tools,
	}
}

// HashKeyStrategy hashes the whole request.
type HashKeyStrategy struct{}

func (HashKeyStrategy) Name() string { return "hash" }

func (HashKeyStrategy) GenerateKey(req Request) string {
	return "llm:cache:" + digest(material(req, req.Prompt.Messages), 16)
}

// HierarchicalKeyStrategy 层次化缓存键策略
// 格式：llm:cache:{model}:{historyHash}:{lastHash}
// historyHash 覆盖除最后一条以外的消息，多轮对话的前 N-1 轮共享该前缀。
type HierarchicalKeyStrategy struct{}

func (HierarchicalKeyStrategy) Name() string { return "hierarchical" }

func (HierarchicalKeyStrategy) GenerateKey(req Request) string {
	base := fmt.Sprintf("llm:cache:%s", req.Model.String())
	msgs := req.Prompt.Messages
	if len(msgs) == 0 {
		return base + ":empty:" + digest(material(req, nil), 12)
	}
	history := "initial"
	if len(msgs) > 1 {
		history = digest(normalize(msgs[:len(msgs)-1]), 12)
	}
	last := digest(material(req, msgs[len(msgs)-1:]), 12)
	return fmt.Sprintf("%s:%s:%s", base, history, last)
}
