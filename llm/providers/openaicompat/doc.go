// Package openaicompat provides the HTTP client shared by every
// OpenAI-compatible LLM service.
//
// DeepSeek, Qwen, GLM, Kimi, Grok and OpenAI itself speak the same Chat
// Completions format, so one Provider covers them all; a providers.Preset
// supplies the base URL, endpoint and default model:
//
//	preset, _ := providers.LookupPreset("deepseek")
//	p := openaicompat.New(openaicompat.FromPreset(preset, apiKey), logger)
//	exec := llm.NewProviderExecutor(logger, p)
package openaicompat
