// Package tokenizer 提供统一的 Token 计数接口，支持 tiktoken 精确计数与
// CJK 感知的估算器。agent.ReadSession.TokenCount 用它判断何时压缩历史。
package tokenizer
