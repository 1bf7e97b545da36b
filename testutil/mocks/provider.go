// MockProvider 的 LLM 提供商测试模拟实现。
//
// 支持固定响应、流式输出与前 N 次失败的错误注入。
package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/agentgraph/llm"
	"github.com/BaSui01/agentgraph/types"
)

// --- MockProvider 结构 ---

// MockProvider 是 llm.Provider 的模拟实现
type MockProvider struct {
	mu sync.RWMutex

	name string

	// 响应配置
	response       string
	streamChunks   []string
	completionFunc func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	// 前 failures 次调用（Completion 与 Stream 合计）返回 failErr
	failures int
	failErr  error

	calls     []MockProviderCall
	callCount int
}

var _ llm.Provider = (*MockProvider)(nil)

// MockProviderCall 记录单次调用
type MockProviderCall struct {
	Request  *llm.ChatRequest
	Response *llm.ChatResponse
	Error    error
}

// --- 构造函数和 Builder 方法 ---

// NewMockProvider 创建新的 MockProvider
func NewMockProvider() *MockProvider {
	return &MockProvider{name: "mock", response: "mock response"}
}

// WithName 设置 Provider 名称
func (m *MockProvider) WithName(name string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.name = name
	return m
}

// WithResponse 设置固定文本回复
func (m *MockProvider) WithResponse(response string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = response
	return m
}

// WithStreamChunks 设置流式增量
func (m *MockProvider) WithStreamChunks(chunks []string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streamChunks = chunks
	return m
}

// WithFailures makes the first n calls fail with err.
func (m *MockProvider) WithFailures(n int, err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures, m.failErr = n, err
	return m
}

// WithCompletionFunc 自定义 Completion 行为
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completionFunc = fn
	return m
}

// --- Provider 接口实现 ---

func (m *MockProvider) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *MockProvider) SupportsNativeFunctionCalling() bool { return true }

// begin counts a call and reports the injected failure, if any.
func (m *MockProvider) begin(req *llm.ChatRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount++
	if m.callCount <= m.failures {
		m.calls = append(m.calls, MockProviderCall{Request: req, Error: m.failErr})
		return m.failErr
	}
	return nil
}

func (m *MockProvider) record(call MockProviderCall) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	m.mu.Unlock()
}

// Completion 生成响应
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.begin(req); err != nil {
		return nil, err
	}

	m.mu.RLock()
	fn, name, text := m.completionFunc, m.name, m.response
	m.mu.RUnlock()
	if fn != nil {
		resp, err := fn(ctx, req)
		m.record(MockProviderCall{Request: req, Response: resp, Error: err})
		return resp, err
	}

	resp := &llm.ChatResponse{ID: "mock-response-id", Provider: name, Model: req.Model, CreatedAt: time.Now()}
	for i := range max(req.N, 1) {
		resp.Choices = append(resp.Choices, llm.ChatChoice{
			Index:        i,
			FinishReason: "stop",
			Message:      types.NewAssistantMessage(text),
		})
	}
	m.record(MockProviderCall{Request: req, Response: resp})
	return resp, nil
}

// Stream 流式生成响应
func (m *MockProvider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if err := m.begin(req); err != nil {
		return nil, err
	}
	m.record(MockProviderCall{Request: req})

	m.mu.RLock()
	chunks, name := m.streamChunks, m.name
	if len(chunks) == 0 {
		chunks = []string{m.response}
	}
	m.mu.RUnlock()

	ch := make(chan llm.StreamChunk, len(chunks))
	go func() {
		defer close(ch)
		for i, c := range chunks {
			chunk := llm.StreamChunk{
				ID:       "mock-chunk-id",
				Provider: name,
				Model:    req.Model,
				Index:    i,
				Delta:    types.Message{Role: types.RoleAssistant, Content: c},
			}
			if i == len(chunks)-1 {
				chunk.FinishReason = "stop"
			}
			select {
			case <-ctx.Done():
				return
			case ch <- chunk:
			}
		}
	}()
	return ch, nil
}

// --- 查询方法 ---

// GetCallCount 获取调用次数，包括注入失败的调用
func (m *MockProvider) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callCount
}

// GetLastCall 获取最后一次调用
func (m *MockProvider) GetLastCall() *MockProviderCall {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.calls) == 0 {
		return nil
	}
	call := m.calls[len(m.calls)-1]
	return &call
}

// --- 预设 Provider 工厂 ---

// NewSuccessProvider 创建总是成功的 Provider
func NewSuccessProvider(response string) *MockProvider {
	return NewMockProvider().WithResponse(response)
}

// NewFlakeyProvider fails the first failures calls with err, then answers
// with response.
func NewFlakeyProvider(failures int, err error, response string) *MockProvider {
	return NewMockProvider().WithResponse(response).WithFailures(failures, err)
}
