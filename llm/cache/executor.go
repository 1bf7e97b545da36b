package cache

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

// cacheType is the metrics label of prompt cache observations.
const cacheType = "prompt"

// Recorder receives hit and miss observations; *metrics.Collector
// satisfies it.
type Recorder interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// CachedExecutor is a PromptExecutor that answers repeated requests from a
// Store. Store failures never fail a request; they are logged and the
// request goes to the wrapped executor.
type CachedExecutor struct {
	next         llm.PromptExecutor
	store        Store
	strategy     KeyStrategy
	recorder     Recorder
	logger       *zap.Logger
	toolRequests bool
	now          func() time.Time
}

var _ llm.PromptExecutor = (*CachedExecutor)(nil)

// Option configures a CachedExecutor.
type Option func(*CachedExecutor)

// WithKeyStrategy replaces the default hash strategy.
func WithKeyStrategy(s KeyStrategy) Option {
	return func(c *CachedExecutor) { c.strategy = s }
}

// WithRecorder reports hits and misses.
func WithRecorder(r Recorder) Option {
	return func(c *CachedExecutor) { c.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *CachedExecutor) { c.logger = l }
}

// WithToolRequests also caches requests that offer tools, Tool-Call
// responses included.
func WithToolRequests(enabled bool) Option {
	return func(c *CachedExecutor) { c.toolRequests = enabled }
}

// NewCachedExecutor wraps next.
func NewCachedExecutor(next llm.PromptExecutor, store Store, opts ...Option) *CachedExecutor {
	c := &CachedExecutor{next: next, store: store, strategy: HashKeyStrategy{}, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "prompt_cache"), zap.String("strategy", c.strategy.Name()))
	return c
}

func (c *CachedExecutor) cacheable(descs []tools.Descriptor) bool {
	return len(descs) == 0 || c.toolRequests
}

func (c *CachedExecutor) lookup(ctx context.Context, key string) (*Entry, bool) {
	e, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.Warn("cache get failed", zap.String("key", key), zap.Error(err))
		}
		if c.recorder != nil {
			c.recorder.RecordCacheMiss(cacheType)
		}
		return nil, false
	}
	if c.recorder != nil {
		c.recorder.RecordCacheHit(cacheType)
	}
	c.logger.Debug("cache hit", zap.String("key", key), zap.Int("hit_count", e.HitCount))
	return e, true
}

func (c *CachedExecutor) save(ctx context.Context, key string, e *Entry) {
	e.CreatedAt = c.now()
	if err := c.store.Set(ctx, key, e); err != nil {
		c.logger.Warn("cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func cloneAll(msgs []types.Message) []types.Message {
	out := make([]types.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

func (c *CachedExecutor) Execute(ctx context.Context, prompt types.Prompt, model llm.Model) (string, error) {
	key := c.strategy.GenerateKey(Request{Method: MethodExecute, Model: model, Prompt: prompt})
	if e, ok := c.lookup(ctx, key); ok {
		return e.Text, nil
	}
	text, err := c.next.Execute(ctx, prompt, model)
	if err != nil {
		return "", err
	}
	c.save(ctx, key, &Entry{Text: text, Model: model.String()})
	return text, nil
}

func (c *CachedExecutor) ExecuteWithTools(ctx context.Context, prompt types.Prompt, model llm.Model, descs []tools.Descriptor) ([]types.Message, error) {
	if !c.cacheable(descs) {
		return c.next.ExecuteWithTools(ctx, prompt, model, descs)
	}
	key := c.strategy.GenerateKey(Request{Method: MethodTools, Model: model, Prompt: prompt, Tools: descs})
	if e, ok := c.lookup(ctx, key); ok {
		return cloneAll(e.Messages), nil
	}
	msgs, err := c.next.ExecuteWithTools(ctx, prompt, model, descs)
	if err != nil {
		return nil, err
	}
	c.save(ctx, key, &Entry{Messages: cloneAll(msgs), Model: model.String()})
	return msgs, nil
}

func (c *CachedExecutor) ExecuteMultipleChoices(ctx context.Context, prompt types.Prompt, model llm.Model, descs []tools.Descriptor) ([]llm.Choice, error) {
	if !c.cacheable(descs) {
		return c.next.ExecuteMultipleChoices(ctx, prompt, model, descs)
	}
	key := c.strategy.GenerateKey(Request{Method: MethodChoices, Model: model, Prompt: prompt, Tools: descs})
	if e, ok := c.lookup(ctx, key); ok {
		out := make([]llm.Choice, len(e.Choices))
		for i, ch := range e.Choices {
			out[i] = llm.Choice(cloneAll(ch))
		}
		return out, nil
	}
	choices, err := c.next.ExecuteMultipleChoices(ctx, prompt, model, descs)
	if err != nil {
		return nil, err
	}
	stored := make([]llm.Choice, len(choices))
	for i, ch := range choices {
		stored[i] = llm.Choice(cloneAll(ch))
	}
	c.save(ctx, key, &Entry{Choices: stored, Model: model.String()})
	return choices, nil
}

// ExecuteStreaming is never cached.
func (c *CachedExecutor) ExecuteStreaming(ctx context.Context, prompt types.Prompt, model llm.Model) (<-chan llm.StreamChunk, error) {
	return c.next.ExecuteStreaming(ctx, prompt, model)
}
