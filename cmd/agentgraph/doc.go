// Copyright (c) AgentGraph Authors.
// Licensed under the MIT License.

/*
Package main 提供 agentgraph 命令行程序。

# 概述

agentgraph run 按配置组装 Provider、执行器中间件、缓存、记忆与追踪
特性，然后用 single_run 策略回答一个问题；--stream 改用只有一个流式
节点的策略并把增量写到标准输出。

# 组装顺序

  - Provider：按 llm.provider 查找预设，base_url/api_key 覆盖预设，
    max_retries 大于 0 时包裹重试。
  - 执行器中间件：Recovery、Logging、请求改写、限流、超时。
  - 缓存：cache.enable_local / enable_redis 决定 LRU、Redis 或两级缓存，
    工具结果同时走 ToolResultCache。
  - 特性：metrics、oteltrace、memory、tracing 按配置启用，iterlimit
    总是安装，预算来自 agent.max_iterations。
  - metrics.listen_addr 非空时启动管理端 HTTP 服务暴露 /metrics。

版本信息 Version、BuildTime、GitCommit 通过 ldflags 注入。
*/
package main
