// 版权所有 2024 AgentGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的运行指标采集能力，覆盖
运行、节点、LLM、工具与缓存五个维度。

# 概述

本包通过 Collector 统一注册和记录 Prometheus 指标，使用 promauto.With
在指定 Registerer 上注册（默认为全局 Registry）。所有指标按 namespace
隔离，支持多维度 label 分组。

# 核心类型

  - Collector：指标收集器，持有 Counter、Histogram 向量指标，
    按业务域分组管理；Handler 以 Prometheus 文本格式暴露指标。

# 主要能力

  - 运行指标：运行总数与耗时，按 strategy/status 分组。
  - 节点指标：节点执行总数、耗时与死路计数，按 strategy/node 分组。
  - LLM 指标：请求总数、耗时、返回消息数（text/tool_call），按 model 分组。
  - 工具指标：调用总数、耗时、派发失败计数，按 tool 分组。
  - 缓存指标：命中与未命中计数，按 cache_type 分组。
*/
package metrics
