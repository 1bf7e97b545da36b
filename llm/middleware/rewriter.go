package middleware

import (
	"context"
	"fmt"

	"github.com/BaSui01/agentgraph/llm"
)

// RequestRewriter 请求改写器接口
// 用于在请求发送到上游 API 之前进行参数清理和转换
type RequestRewriter interface {
	// Rewrite 改写请求
	// 返回改写后的请求和错误（如果改写失败）
	Rewrite(ctx context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error)

	// Name 返回改写器名称（用于日志和调试）
	Name() string
}

// RewriterChain 改写器链
// 按顺序执行多个改写器
type RewriterChain struct {
	rewriters []RequestRewriter
}

// NewRewriterChain 创建改写器链
func NewRewriterChain(rewriters ...RequestRewriter) *RewriterChain {
	return &RewriterChain{rewriters: rewriters}
}

// DefaultRewriterChain is the chain OpenAI-compatible providers run before
// every request.
func DefaultRewriterChain() *RewriterChain {
	return NewRewriterChain(NewEmptyToolsCleaner())
}

// Execute 执行改写器链，任何一个失败则中断并返回错误
func (c *RewriterChain) Execute(ctx context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if c == nil || len(c.rewriters) == 0 {
		return req, nil
	}

	var err error
	for _, rewriter := range c.rewriters {
		req, err = rewriter.Rewrite(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewriter [%s] failed: %w", rewriter.Name(), err)
		}
	}
	return req, nil
}

// AddRewriter 动态添加改写器；不是并发安全的，应在使用前完成组装
func (c *RewriterChain) AddRewriter(rewriter RequestRewriter) *RewriterChain {
	c.rewriters = append(c.rewriters, rewriter)
	return c
}

// Names 返回所有改写器名称
func (c *RewriterChain) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, len(c.rewriters))
	for i, r := range c.rewriters {
		names[i] = r.Name()
	}
	return names
}

// AsMiddleware runs the chain in front of a completion handler. Rewrite
// failures surface as LLM_INVALID_REQUEST provider errors.
func (c *RewriterChain) AsMiddleware() llm.Middleware {
	return func(next llm.Handler) llm.Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			rewritten, err := c.Execute(ctx, req)
			if err != nil {
				return nil, &llm.Error{Code: llm.ErrInvalidRequest, Message: err.Error(), HTTPStatus: 400}
			}
			return next(ctx, rewritten)
		}
	}
}
