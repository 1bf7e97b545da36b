package providers

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/llm"
)

// RetryableProvider wraps an llm.Provider with exponential-backoff retry
// logic. Only errors marked Retryable are retried.
type RetryableProvider struct {
	inner  llm.Provider
	policy llm.RetryPolicy
	logger *zap.Logger
}

// NewRetryableProvider creates a retrying wrapper around the given provider.
func NewRetryableProvider(inner llm.Provider, policy llm.RetryPolicy, logger *zap.Logger) *RetryableProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetryableProvider{
		inner:  inner,
		policy: policy,
		logger: logger.With(zap.String("component", "retry_provider"), zap.String("provider", inner.Name())),
	}
}

// Compile-time interface check.
var _ llm.Provider = (*RetryableProvider)(nil)

func (p *RetryableProvider) Name() string { return p.inner.Name() }
func (p *RetryableProvider) SupportsNativeFunctionCalling() bool {
	return p.inner.SupportsNativeFunctionCalling()
}

// Completion performs a chat completion with retry on transient errors.
func (p *RetryableProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return retry(ctx, p, "completion", func() (*llm.ChatResponse, error) {
		return p.inner.Completion(ctx, req)
	})
}

// Stream performs a streaming chat request with retry on connection errors.
// Only the connection-establishment phase is retried; mid-stream errors are not.
func (p *RetryableProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	return retry(ctx, p, "stream", func() (<-chan llm.StreamChunk, error) {
		return p.inner.Stream(ctx, req)
	})
}

func retry[T any](ctx context.Context, p *RetryableProvider, op string, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 0; attempt <= p.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.policy.Delay(attempt)
			p.logger.Debug("retrying "+op,
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		out, err := fn()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !llm.IsRetryable(err) {
			return zero, err
		}
		p.logger.Warn(op+" failed, will retry",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return zero, fmt.Errorf("%s failed after %d retries: %w", op, p.policy.MaxRetries, lastErr)
}
