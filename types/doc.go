// Copyright (c) AgentGraph Authors.
// Licensed under the MIT License.

/*
Package types 提供 agentgraph 框架的全局共享类型定义。

# 概述

types 是框架最底层的公共包，不依赖任何内部包，为 llm、agent、workflow
等上层模块提供统一的类型契约，以避免循环依赖。

# 核心类型

  - Option[T]        : Present / Absent 两态值，边（Edge）用它表达"未匹配"
  - Message          : 对话消息（system / user / assistant / tool）
  - ToolCall         : 模型发出的工具调用请求，按 ID 关联工具结果
  - Prompt           : 有序消息序列 + 请求参数
  - Error / ErrorCode: 结构化错误体系，ErrorCode.Phase 映射到 build /
    dispatch / protocol / dead-end / execution 五个阶段

# 主要能力

  - Option 代数：Filter / MapOption，组合顺序即声明顺序
  - Prompt 校验：Tool-Result 必须引用之前出现过的 Tool-Call ID
  - 错误工具链：AsError / IsCode / PhaseOf
  - Context 传播：WithRunID / WithStageName 等
*/
package types
