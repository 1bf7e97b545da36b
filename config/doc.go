// Package config 提供 agentgraph 的配置管理功能。
//
// 配置按 默认值 → YAML 文件 → 环境变量 的顺序合并，环境变量名由前缀与
// 结构体的 env tag 逐级拼接而成，例如 AGENTGRAPH_LLM_API_KEY。
package config
