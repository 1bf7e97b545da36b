// 版权所有 2024 AgentGraph Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 提供管理端 HTTP 服务器的生命周期管理。

# 概述

Manager 封装 net/http.Server，负责监听、后台服务、优雅关闭与异步
错误传播。CLI 在启用指标时通过它暴露 Prometheus 的 /metrics 端点，
同时提供 /healthz 就绪检查。

# 核心类型

  - Manager：持有 http.Server、net.Listener 与错误通道，提供
    Start/Shutdown/Errors/Addr 等方法。监听 ":0" 时 Addr 返回实际端口。
  - Routes / NewRouter：基于 chi 按需注册 /metrics 与 /healthz。
  - Config：监听地址、读写超时与优雅关闭超时。
*/
package server
