package agent

import (
	"github.com/google/uuid"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// Config is the static configuration of an agent.
type Config struct {
	// ID identifies the agent in events and logs; generated when empty.
	ID string
	// Prompt is the initial prompt of every run, usually system messages only.
	Prompt types.Prompt
	Model  llm.Model
	// StructuredRetries bounds RequestStructured attempts (default 3).
	StructuredRetries int
}

// NewConfig builds a config with a system prompt.
func NewConfig(systemPrompt string, model llm.Model) Config {
	p := types.NewPrompt(uuid.NewString())
	if systemPrompt != "" {
		p.Messages = append(p.Messages, types.NewSystemMessage(systemPrompt))
	}
	return Config{Prompt: p, Model: model}
}

func (c Config) withDefaults() Config {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Prompt.ID == "" {
		c.Prompt.ID = uuid.NewString()
	}
	if c.StructuredRetries <= 0 {
		c.StructuredRetries = 3
	}
	return c
}
