// 版权所有 2024 AgentGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 cache 为模型调用与工具调用提供缓存，减少重复请求的延迟与成本。

# 核心类型

  - Store：缓存存储接口（Get/Set），ErrCacheMiss 表示未命中。
  - LRUStore：本地 LRU（O(1) 操作，带 TTL）。
  - RedisStore：基于 go-redis 的共享缓存。
  - MultiLevelStore：L1 本地 + L2 Redis，L2 命中时回填 L1。
  - KeyStrategy：缓存键策略，Hash 精确匹配，Hierarchical 让多轮对话
    共享历史前缀。
  - CachedExecutor：llm.PromptExecutor 装饰器。
  - ToolResultCache / CachedTool：按工具名与参数缓存工具结果。

# 可缓存判断

默认只缓存不带工具的请求：带工具的请求可能触发有副作用的调用，
直接复用响应会跳过这些副作用。WithToolRequests 可放开该限制。
流式请求从不缓存。

# 使用方式

	store := cache.NewMultiLevelStore(cache.NewLRUStore(1000, 5*time.Minute),
	    cache.NewRedisStore(rdb, time.Hour))
	exec := cache.NewCachedExecutor(provider, store, cache.WithRecorder(collector))
*/
package cache
