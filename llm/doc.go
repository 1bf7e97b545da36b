// Copyright (c) AgentGraph Authors.
// Licensed under the MIT License.

/*
Package llm 定义 agentgraph 与语言模型之间的边界契约。

# 概述

执行核心只依赖 PromptExecutor 接口：

  - Execute               : 纯文本请求，返回 assistant 文本
  - ExecuteWithTools      : 带工具的请求，返回一条 assistant 消息或若干 Tool-Call 消息
  - ExecuteMultipleChoices: 一次请求返回 k 个候选（Choice）
  - ExecuteStreaming      : 流式返回文本增量，有限且不可重放

具体的 Provider（OpenAI 兼容、测试桩等）只需实现 Provider 接口，
由 ProviderExecutor 把 Prompt 转换为 ChatRequest，并在 Completion
调用外层套上 Middleware 链（日志、超时、恢复、重试、限流、指标）。

# 工具 Schema

ToolSchemaOf 把 tools.Descriptor 编码为 JSON Schema，供 Provider 上送。
*/
package llm
