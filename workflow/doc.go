// Copyright (c) AgentGraph Authors.
// Licensed under the MIT License.

/*
Package workflow 提供策略图（Strategy）的构建与执行。

# 概述

一个 Strategy 是由类型化节点和条件边组成的有向图，拥有唯一的 Start 与
Finish 节点。执行引擎从 Start 出发，执行当前节点，然后按声明顺序依次
评估该节点的出边：第一条返回 Present 的边胜出；没有任何边匹配时返回
DEAD_END 错误并报告节点名。到达 Finish 时，其输入即为运行结果。图中允许
出现环（工具调用循环依赖于此），引擎本身不限制迭代次数。

# 核心类型

  - Node[I, O]       : 命名的计算单元 (ctx, *agent.Context, I) -> (O, error)
  - Forward[O, T]    : 构建中的边：From → OnCondition / Transformed → To
  - Edge             : 类型擦除后的完整边
  - StrategyBuilder  : NewStrategy + AddEdge + Build（含可达性与重名校验）
  - Strategy[I, O]   : 不可变、可复用的图，实现 agent.Strategy
  - NewParallel      : 并行分支 + Reducer（FailFast / CollectAll）
  - Subgraph         : 把 Strategy 嵌入为节点，可指定静态工具集

# 边代数

	edge := workflow.To(
	    workflow.OnToolCall(workflow.From(callLLM)),
	    executeTool,
	)

OnCondition 等价于 Option.Filter，Transformed 等价于 MapOption；组合顺序与
声明顺序严格一致。

# 并行与归约

每个分支获得同一输入和独立 Fork 的上下文；Reducer 必须同时选择输出和
唯一一个分支上下文，该上下文通过 Replace 成为后续节点的上下文。
*/
package workflow
