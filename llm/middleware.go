package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Handler processes a request and returns a response.
type Handler func(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

// Middleware wraps a handler with additional functionality.
type Middleware func(next Handler) Handler

// Chain represents a middleware chain. The first middleware is outermost.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain creates a new middleware chain.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use adds middleware to the chain.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then wraps a handler with all middleware.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len returns the number of middleware.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// LoggingMiddleware logs request/response details.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			logger.Debug("llm request",
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
				zap.Int("tools", len(req.Tools)))

			resp, err := next(ctx, req)

			if err != nil {
				logger.Warn("llm request failed",
					zap.String("model", req.Model),
					zap.Duration("duration", time.Since(start)),
					zap.Error(err))
				return resp, err
			}
			logger.Debug("llm response",
				zap.String("model", req.Model),
				zap.Int("choices", len(resp.Choices)),
				zap.Int("total_tokens", resp.Usage.TotalTokens),
				zap.Duration("duration", time.Since(start)))
			return resp, nil
		}
	}
}

// TimeoutMiddleware adds timeout to requests. ChatRequest.Timeout, when set,
// takes precedence.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			d := timeout
			if req.Timeout > 0 {
				d = req.Timeout
			}
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// RecoveryMiddleware recovers from panics.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (resp *ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					err = &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError represents a recovered panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}

// RetryPolicy 定义重试策略配置（指数退避 + 可选抖动）
type RetryPolicy struct {
	MaxRetries   int           // 最大重试次数（0 表示不重试）
	InitialDelay time.Duration // 初始延迟时间
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟倍增因子
	Jitter       bool          // 是否添加 ±25% 随机抖动
}

// DefaultRetryPolicy 返回默认的重试策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Delay returns the wait before the given retry attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}
	delay := float64(p.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		delay += (rand.Float64()*2 - 1) * delay * 0.25
	}
	if delay < float64(p.InitialDelay) {
		delay = float64(p.InitialDelay)
	}
	return time.Duration(delay)
}

// IsRetryable reports whether err is a provider error marked retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// RetryMiddleware retries requests failing with a retryable *Error.
func RetryMiddleware(policy RetryPolicy, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			var lastErr error
			for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
				if attempt > 0 {
					delay := policy.Delay(attempt)
					logger.Debug("retrying llm request",
						zap.Int("attempt", attempt),
						zap.Duration("delay", delay),
						zap.Error(lastErr))
					select {
					case <-ctx.Done():
						return nil, fmt.Errorf("retry cancelled: %w", ctx.Err())
					case <-time.After(delay):
					}
				}
				resp, err := next(ctx, req)
				if err == nil {
					return resp, nil
				}
				lastErr = err
				if !IsRetryable(err) {
					return nil, err
				}
			}
			logger.Warn("llm retries exhausted", zap.Int("attempts", policy.MaxRetries+1), zap.Error(lastErr))
			return nil, lastErr
		}
	}
}

// RateLimitMiddleware waits for a token before each request.
func RateLimitMiddleware(limiter *rate.Limiter) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			if err := limiter.Wait(ctx); err != nil {
				return nil, &Error{Code: ErrRateLimited, Message: "local rate limit: " + err.Error()}
			}
			return next(ctx, req)
		}
	}
}

// MetricsMiddleware collects request metrics.
func MetricsMiddleware(collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)
			duration := time.Since(start)

			collector.RecordRequest(req.Model, duration, err == nil)
			if resp != nil {
				collector.RecordTokens(req.Model, resp.Usage.TotalTokens)
			}

			return resp, err
		}
	}
}

// MetricsCollector defines metrics collection interface.
type MetricsCollector interface {
	RecordRequest(model string, duration time.Duration, success bool)
	RecordTokens(model string, tokens int)
}
