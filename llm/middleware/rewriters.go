package middleware

import (
	"context"
	"strings"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// EmptyToolsCleaner 空工具列表清理器
// 当请求的 Tools 为空时，清除 ToolChoice 字段
// 避免上游 API 返回 400 错误（OpenAI 不允许空 tools 数组时设置 tool_choice）
type EmptyToolsCleaner struct{}

// NewEmptyToolsCleaner 创建空工具清理器
func NewEmptyToolsCleaner() *EmptyToolsCleaner {
	return &EmptyToolsCleaner{}
}

func (r *EmptyToolsCleaner) Name() string { return "empty_tools_cleaner" }

func (r *EmptyToolsCleaner) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil {
		return req, nil
	}
	if len(req.Tools) == 0 {
		req.ToolChoice = ""
	}
	return req, nil
}

// SystemMessageMerger 合并 system 消息
// 所有 system 消息按原顺序以空行拼接，放到消息列表最前面；
// 其余消息的相对顺序不变。请求中的消息切片会被替换而不是原地修改。
type SystemMessageMerger struct{}

// NewSystemMessageMerger 创建 system 消息合并器
func NewSystemMessageMerger() *SystemMessageMerger {
	return &SystemMessageMerger{}
}

func (r *SystemMessageMerger) Name() string { return "system_message_merger" }

func (r *SystemMessageMerger) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil {
		return req, nil
	}
	var system []string
	rest := make([]types.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == types.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	if len(system) == 0 || (len(system) == 1 && req.Messages[0].Role == types.RoleSystem) {
		return req, nil
	}
	merged := types.NewSystemMessage(strings.Join(system, "\n\n"))
	req.Messages = append([]types.Message{merged}, rest...)
	return req, nil
}
