package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func okHandler(_ context.Context, req *ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Model: req.Model, Usage: ChatUsage{TotalTokens: 7}}, nil
}

func TestRetryMiddleware(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1}

	t.Run("retryable then ok", func(t *testing.T) {
		calls := 0
		h := RetryMiddleware(policy, nil)(func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			calls++
			if calls < 3 {
				return nil, &Error{Code: ErrUpstreamError, Retryable: true, Message: "503"}
			}
			return okHandler(ctx, req)
		})
		_, err := h(context.Background(), &ChatRequest{Model: "m"})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("not retryable", func(t *testing.T) {
		calls := 0
		h := RetryMiddleware(policy, nil)(func(context.Context, *ChatRequest) (*ChatResponse, error) {
			calls++
			return nil, &Error{Code: ErrUnauthorized, Message: "401"}
		})
		_, err := h(context.Background(), &ChatRequest{})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestRetryPolicy_DelayBounds(t *testing.T) {
	p := RetryPolicy{InitialDelay: 10 * time.Millisecond, MaxDelay: 40 * time.Millisecond, Multiplier: 2}
	assert.Equal(t, 10*time.Millisecond, p.Delay(1))
	assert.Equal(t, 20*time.Millisecond, p.Delay(2))
	assert.Equal(t, 40*time.Millisecond, p.Delay(5))
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	h := RecoveryMiddleware(func(v any) { recovered = v })(func(context.Context, *ChatRequest) (*ChatResponse, error) {
		panic("boom")
	})
	_, err := h(context.Background(), &ChatRequest{})
	var pe *PanicError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "boom", recovered)
}

func TestTimeoutMiddleware_RequestOverride(t *testing.T) {
	h := TimeoutMiddleware(time.Hour)(func(ctx context.Context, _ *ChatRequest) (*ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), &ChatRequest{Timeout: 10 * time.Millisecond})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRateLimitMiddleware(t *testing.T) {
	h := RateLimitMiddleware(rate.NewLimiter(rate.Every(time.Hour), 1))(okHandler)
	_, err := h(context.Background(), &ChatRequest{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = h(ctx, &ChatRequest{})
	var le *Error
	require.True(t, errors.As(err, &le))
	assert.Equal(t, ErrRateLimited, le.Code)
}

type countingCollector struct {
	requests, tokens int
}

func (c *countingCollector) RecordRequest(string, time.Duration, bool) { c.requests++ }
func (c *countingCollector) RecordTokens(_ string, n int)             { c.tokens += n }

func TestMetricsAndLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	collector := &countingCollector{}
	h := NewChain(LoggingMiddleware(zap.New(core)), MetricsMiddleware(collector)).Then(okHandler)

	_, err := h(context.Background(), &ChatRequest{Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, 1, collector.requests)
	assert.Equal(t, 7, collector.tokens)
	assert.Equal(t, 2, logs.FilterMessage("llm request").Len()+logs.FilterMessage("llm response").Len())
}
