package providers

import (
	"fmt"
	"sort"
	"time"
)

// BaseProviderConfig 所有 Provider 共享的基础配置字段。
type BaseProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// Preset describes a known OpenAI-compatible service.
type Preset struct {
	Name         string
	BaseURL      string
	EndpointPath string
	DefaultModel string
	// MultipleChoices reports native support for the n parameter.
	MultipleChoices bool
}

// 已知的 OpenAI 兼容服务商
var presets = map[string]Preset{
	"openai":   {Name: "openai", BaseURL: "https://api.openai.com", EndpointPath: "/v1/chat/completions", DefaultModel: "gpt-4o-mini", MultipleChoices: true},
	"deepseek": {Name: "deepseek", BaseURL: "https://api.deepseek.com", EndpointPath: "/v1/chat/completions", DefaultModel: "deepseek-chat"},
	"qwen":     {Name: "qwen", BaseURL: "https://dashscope.aliyuncs.com/compatible-mode", EndpointPath: "/v1/chat/completions", DefaultModel: "qwen-plus", MultipleChoices: true},
	"glm":      {Name: "glm", BaseURL: "https://open.bigmodel.cn/api/paas", EndpointPath: "/v4/chat/completions", DefaultModel: "glm-4-flash"},
	"kimi":     {Name: "kimi", BaseURL: "https://api.moonshot.cn", EndpointPath: "/v1/chat/completions", DefaultModel: "moonshot-v1-8k", MultipleChoices: true},
	"grok":     {Name: "grok", BaseURL: "https://api.x.ai", EndpointPath: "/v1/chat/completions", DefaultModel: "grok-2-latest"},
	"mistral":  {Name: "mistral", BaseURL: "https://api.mistral.ai", EndpointPath: "/v1/chat/completions", DefaultModel: "mistral-small-latest"},
	"doubao":   {Name: "doubao", BaseURL: "https://ark.cn-beijing.volces.com/api", EndpointPath: "/v3/chat/completions", DefaultModel: "doubao-pro-32k"},
}

// LookupPreset returns the preset registered under name.
func LookupPreset(name string) (Preset, error) {
	p, ok := presets[name]
	if !ok {
		return Preset{}, fmt.Errorf("unknown provider %q (known: %v)", name, PresetNames())
	}
	return p, nil
}

// PresetNames lists the known providers in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
