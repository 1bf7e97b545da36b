package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/agentgraph/types"
)

// DefaultTimeout is the per-call timeout when none is configured.
const DefaultTimeout = 30 * time.Second

// Result represents tool execution result.
type Result struct {
	ToolCallID string          `json:"tool_call_id"`
	Name       string          `json:"name"`
	Output     json.RawMessage `json:"output,omitempty"`
	Error      string          `json:"error,omitempty"`
	Duration   time.Duration   `json:"duration"`
}

// CloneResults copies results without sharing Output buffers.
func CloneResults(results []Result) []Result {
	if results == nil {
		return nil
	}
	out := make([]Result, len(results))
	for i, r := range results {
		if r.Output != nil {
			r.Output = append(json.RawMessage(nil), r.Output...)
		}
		out[i] = r
	}
	return out
}

// Content is the text fed back to the model.
func (r Result) Content() string {
	if r.Error != "" {
		return "Error: " + r.Error
	}
	return ResultText(r.Output)
}

// Message builds the Tool-Result message correlated to the call id.
func (r Result) Message() types.Message {
	return types.NewToolMessage(r.ToolCallID, r.Name, r.Content())
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithTimeout sets the default per-call timeout.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = d }
}

// WithToolTimeout overrides the timeout of a single tool.
func WithToolTimeout(name string, d time.Duration) ExecutorOption {
	return func(e *Executor) { e.toolTimeouts[name] = d }
}

// WithRateLimit 为单个工具设置令牌桶限流，调用方会等待令牌或随 ctx 取消
func WithRateLimit(name string, limit rate.Limit, burst int) ExecutorOption {
	return func(e *Executor) { e.limiters[name] = rate.NewLimiter(limit, burst) }
}

// WithExecutorLogger sets the logger.
func WithExecutorLogger(logger *zap.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = logger }
}

// Executor dispatches tool calls against a registry.
type Executor struct {
	timeout      time.Duration
	toolTimeouts map[string]time.Duration
	limiters     map[string]*rate.Limiter
	logger       *zap.Logger
}

// NewExecutor 创建工具执行器。
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		timeout:      DefaultTimeout,
		toolTimeouts: map[string]time.Duration{},
		limiters:     map[string]*rate.Limiter{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "tool_executor"))
	return e
}

// Execute runs one call. The returned error is a dispatch failure
// (TOOL_NOT_REGISTERED, TOOL_ARGS_INVALID) or CANCELLED when ctx ends.
// Handler errors and per-call timeouts are reported in Result.Error.
func (e *Executor) Execute(ctx context.Context, reg *Registry, call types.ToolCall) (Result, error) {
	start := time.Now()
	result := Result{ToolCallID: call.ID, Name: call.Name}

	// 1. 查找工具
	tool, ok := reg.Get(call.Name)
	if !ok {
		e.logger.Error("tool not registered", zap.String("name", call.Name))
		return result, types.NewError(types.ErrToolNotRegistered,
			fmt.Sprintf("tool %q is not registered", call.Name)).WithTool(call.Name)
	}

	// 2. 参数校验
	args, err := ValidateArgs(tool.Descriptor(), call.Arguments)
	if err != nil {
		e.logger.Error("invalid tool arguments", zap.String("name", call.Name), zap.Error(err))
		return result, err
	}

	// 3. 限流
	if limiter, ok := e.limiters[call.Name]; ok {
		if err := limiter.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("rate limit: %s", err)
			result.Duration = time.Since(start)
			e.logger.Warn("rate limit wait failed", zap.String("name", call.Name), zap.Error(err))
			return result, nil
		}
	}

	// 4. 执行工具（带超时控制）
	timeout := e.timeout
	if d, ok := e.toolTimeouts[call.Name]; ok {
		timeout = d
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// 带缓冲的 channel，超时后 goroutine 也能正常退出
	type outcome struct {
		res json.RawMessage
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := tool.Execute(execCtx, args)
		done <- outcome{res, err}
	}()

	select {
	case out := <-done:
		result.Duration = time.Since(start)
		if out.err != nil {
			result.Error = out.err.Error()
			e.logger.Warn("tool execution failed",
				zap.String("name", call.Name),
				zap.Error(out.err),
				zap.Duration("duration", result.Duration))
			return result, nil
		}
		result.Output = out.res
		e.logger.Debug("tool executed",
			zap.String("name", call.Name),
			zap.Duration("duration", result.Duration))
	case <-execCtx.Done():
		result.Duration = time.Since(start)
		if ctx.Err() != nil {
			return result, types.NewError(types.ErrCancelled, "tool call cancelled").WithTool(call.Name).WithCause(ctx.Err())
		}
		result.Error = fmt.Sprintf("execution timeout after %s", timeout)
		e.logger.Error("tool execution timeout",
			zap.String("name", call.Name),
			zap.Duration("timeout", timeout))
	}
	return result, nil
}
