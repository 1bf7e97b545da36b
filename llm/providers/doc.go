// Copyright 2026 AgentGraph Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容服务商的公共基础层：请求/响应转换、
错误映射、重试包装与服务商预设。具体的 HTTP 客户端位于 openaicompat 子包。

# 核心类型

  - OpenAICompat* 系列: Chat Completions 的请求/响应/工具调用结构体
  - Preset: 已知服务商的 BaseURL、端点与默认模型
  - RetryableProvider: 带指数退避重试的 Provider 包装器

# 核心函数

  - MapHTTPError: 将 HTTP 状态码映射为语义化的 llm.Error（含 Retryable 标记）
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI: 统一消息与工具格式转换
  - ToLLMChatResponse: OpenAI 兼容响应到 llm.ChatResponse 的转换
  - ChooseModel: 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
