// =============================================================================
// 📦 测试数据工厂 - 对话与工具测试数据
// =============================================================================
// 提供预定义的对话历史与工具调用
// =============================================================================
package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// ConversationWithToolCalls 返回包含一次完整工具往返的对话
func ConversationWithToolCalls() []types.Message {
	call := PlusCall("call_1", 2, 3)
	return []types.Message{
		types.NewSystemMessage("You are a calculator."),
		types.NewUserMessage("What is 2 + 3?"),
		types.NewToolCallMessage(call),
		types.NewToolMessage(call.ID, call.Name, "5"),
		types.NewAssistantMessage("2 + 3 = 5"),
	}
}

// LongConversation 返回 system 消息后跟 turns 轮 user/assistant 对话
func LongConversation(turns int) []types.Message {
	msgs := []types.Message{types.NewSystemMessage("You are a helpful assistant.")}
	for i := range turns {
		msgs = append(msgs,
			types.NewUserMessage(fmt.Sprintf("question %d", i+1)),
			types.NewAssistantMessage(fmt.Sprintf("answer %d", i+1)))
	}
	return msgs
}

// PlusCall 创建 plus 工具调用
func PlusCall(id string, a, b float64) types.ToolCall {
	args, _ := json.Marshal(map[string]float64{"a": a, "b": b})
	return types.ToolCall{ID: id, Name: "plus", Arguments: args}
}

// ToolCall 用 JSON 文本参数创建工具调用
func ToolCall(id, name, args string) types.ToolCall {
	return types.ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
}
