// 版权所有 2024 AgentGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供请求改写器链：在 ChatRequest 发往上游模型服务之前，
按顺序清理或转换请求参数。

# 核心接口

  - RequestRewriter：改写器接口，包含 Rewrite 与 Name 方法。
  - RewriterChain：按顺序执行多个 RequestRewriter，任一失败即中断。

# 内置改写器

  - EmptyToolsCleaner：Tools 为空时清除 ToolChoice。
  - SystemMessageMerger：把分散的 system 消息合并为开头的一条，
    适配只接受单条 system 消息的服务商。

改写器链可通过 AsMiddleware 挂到 llm.ProviderExecutor 的中间件链上，
也可由 openaicompat.Provider 在发送前直接执行。
*/
package middleware
