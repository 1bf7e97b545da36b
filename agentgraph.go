// =============================================================================
// Package agentgraph: One-Line Agent Construction
// =============================================================================
// Provides a convenience entry point for creating agents with minimal
// boilerplate. The result is an agent.AIAgent running
// workflow.SingleRunStrategy unless another strategy is given.
//
// Usage:
//
//	import "github.com/BaSui01/agentgraph"
//
//	a, err := agentgraph.New(agentgraph.WithOpenAI("gpt-4o-mini"), agentgraph.WithTools(myTools...))
//	a, err := agentgraph.New(agentgraph.WithPreset("qwen", "qwen-plus"))
//	a, err := agentgraph.New(agentgraph.WithProvider(myProvider), agentgraph.WithModel("custom"))
//
//	answer, err := a.Run(ctx, "What is 2 + 3?")
//
// =============================================================================
package agentgraph

import (
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/providers"
	"github.com/BaSui01/agentgraph/llm/providers/openaicompat"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/workflow"
)

// Agent is the agent type produced by New.
type Agent = agent.AIAgent[string, string]

// Option configures the agent created by New.
type Option func(*options)

type options struct {
	name         string
	model        string
	systemPrompt string
	provider     llm.Provider
	executor     llm.PromptExecutor
	strategy     agent.Strategy[string, string]
	tools        []tools.Tool
	agentOpts    []agent.Option
	logger       *zap.Logger

	// Provider shortcut fields, used when provider is nil.
	providerName string
	apiKey       string
}

// WithProvider sets a pre-built LLM provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithExecutor sets a ready prompt executor. It takes precedence over any
// provider option.
func WithExecutor(e llm.PromptExecutor) Option {
	return func(o *options) { o.executor = e }
}

// WithPreset selects a known OpenAI-compatible service (see
// providers.PresetNames). The API key is read from <NAME>_API_KEY.
func WithPreset(name, model string) Option {
	return func(o *options) {
		o.providerName = name
		o.model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv(strings.ToUpper(name) + "_API_KEY")
		}
	}
}

// WithOpenAI creates an OpenAI provider using the given model.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option { return WithPreset("openai", model) }

// WithDeepSeek creates a DeepSeek provider using the given model.
// API key is read from DEEPSEEK_API_KEY environment variable.
func WithDeepSeek(model string) Option { return WithPreset("deepseek", model) }

// WithModel sets the model name. Overrides the model set by provider shortcuts.
func WithModel(model string) Option {
	return func(o *options) { o.model = model }
}

// WithName sets the agent id.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSystemPrompt sets the system prompt for the agent.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.systemPrompt = prompt }
}

// WithTools adds tools to the agent's registry.
func WithTools(ts ...tools.Tool) Option {
	return func(o *options) { o.tools = append(o.tools, ts...) }
}

// WithStrategy replaces workflow.SingleRunStrategy.
func WithStrategy(s agent.Strategy[string, string]) Option {
	return func(o *options) { o.strategy = s }
}

// WithAgentOptions passes options such as agent.Use features through.
func WithAgentOptions(opts ...agent.Option) Option {
	return func(o *options) { o.agentOpts = append(o.agentOpts, opts...) }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the API key for provider shortcuts (WithOpenAI, etc.).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// New creates an agent with minimal configuration.
func New(opts ...Option) (*Agent, error) {
	o := &options{name: "agentgraph-agent"}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	exec, providerName, err := o.resolveExecutor()
	if err != nil {
		return nil, err
	}

	registry := tools.EmptyRegistry()
	if len(o.tools) > 0 {
		if registry, err = tools.NewRegistry(o.tools...); err != nil {
			return nil, fmt.Errorf("build tool registry: %w", err)
		}
	}

	strategy := o.strategy
	if strategy == nil {
		strategy = workflow.SingleRunStrategy()
	}

	cfg := agent.NewConfig(o.systemPrompt, llm.Model{Provider: providerName, ID: o.model})
	cfg.ID = o.name

	agentOpts := append([]agent.Option{agent.WithLogger(o.logger)}, o.agentOpts...)
	return agent.NewAIAgent(strategy, exec, registry, cfg, agentOpts...), nil
}

func (o *options) resolveExecutor() (llm.PromptExecutor, string, error) {
	if o.executor != nil {
		return o.executor, o.providerName, nil
	}

	p := o.provider
	if p == nil {
		if o.providerName == "" {
			return nil, "", fmt.Errorf("provider is required: use WithProvider, WithExecutor, WithOpenAI or WithPreset")
		}
		if o.apiKey == "" {
			return nil, "", fmt.Errorf("API key is required for %s: set the environment variable or use WithAPIKey", o.providerName)
		}
		preset, err := providers.LookupPreset(o.providerName)
		if err != nil {
			return nil, "", err
		}
		if o.model == "" {
			o.model = preset.DefaultModel
		}
		p = openaicompat.New(openaicompat.FromPreset(preset, o.apiKey), o.logger)
	}
	return llm.NewProviderExecutor(o.logger, p), p.Name(), nil
}

// Run is a one-shot helper: New followed by a single Run.
func Run(ctx context.Context, input string, opts ...Option) (string, error) {
	a, err := New(opts...)
	if err != nil {
		return "", err
	}
	return a.Run(ctx, input)
}
