// Copyright 2026 AgentGraph Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license.

/*
Package testutil 提供 agentgraph 测试的共享工具和辅助函数。

# 概述

testutil 包为整个项目的单元测试与基准测试提供统一的辅助能力，
避免各包重复实现相似的测试基础设施。所有测试应优先使用此包
中的工具函数和 Mock 实现。

# 核心能力

  - 上下文辅助: TestContext / CancelledContext，TestContext 自动注册
    Cleanup 防止泄漏
  - 错误断言: AssertErrorCode 按 types.ErrorCode 断言结构化错误

# 子包

  - testutil/mocks: Mock 实现，包括 ScriptedExecutor（按脚本回复的
    PromptExecutor）、MockProvider（LLM Provider，可注入前 N 次失败）、
    MockTool 与计算器工具，均支持 Builder 模式
  - testutil/fixtures: 测试数据工厂，提供工具调用与对话历史样例

# 使用示例

	ctx := testutil.TestContext(t)
	exec := mocks.NewScriptedExecutor().
	    ToolCall("plus", `{"a":2,"b":3}`).
	    Reply("5")
	out, err := agent.Run(ctx, workflow.SingleRunStrategy(), mocks.CalculatorRegistry(), "2+3?", exec, cfg)
	require.NoError(t, err)
*/
package testutil
