// MockTool 的工具测试模拟实现。
//
// 支持固定结果、错误注入与调用记录。
package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/BaSui01/agentgraph/llm/tools"
)

// --- MockTool 结构 ---

// MockTool is a tools.Tool that records every invocation.
type MockTool struct {
	mu sync.RWMutex

	desc   tools.Descriptor
	fn     tools.ToolFunc
	result json.RawMessage
	err    error

	calls []ToolInvocation
}

var _ tools.Tool = (*MockTool)(nil)

// ToolInvocation 记录单次工具调用
type ToolInvocation struct {
	Args   json.RawMessage
	Result json.RawMessage
	Error  error
}

// --- 构造函数和 Builder 方法 ---

// NewMockTool 创建只有名字、无参数的工具，默认返回 "ok"
func NewMockTool(name string) *MockTool {
	return &MockTool{
		desc:   tools.Descriptor{Name: name, Description: "Mock tool: " + name},
		result: json.RawMessage(`"ok"`),
	}
}

// WithDescriptor 替换工具描述
func (m *MockTool) WithDescriptor(d tools.Descriptor) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.desc = d
	return m
}

// WithResult 设置固定返回结果
func (m *MockTool) WithResult(v any) *MockTool {
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.result = raw
	return m
}

// WithError 设置固定返回错误
func (m *MockTool) WithError(err error) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFunc 设置执行函数
func (m *MockTool) WithFunc(fn tools.ToolFunc) *MockTool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fn = fn
	return m
}

// --- Tool 接口实现 ---

func (m *MockTool) Descriptor() tools.Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.desc
}

func (m *MockTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	m.mu.RLock()
	fn, result, err := m.fn, m.result, m.err
	m.mu.RUnlock()

	if fn != nil {
		result, err = fn(ctx, args)
	}
	if err != nil {
		result = nil
	}

	m.mu.Lock()
	m.calls = append(m.calls, ToolInvocation{Args: append(json.RawMessage(nil), args...), Result: result, Error: err})
	m.mu.Unlock()
	return result, err
}

// --- 查询方法 ---

// GetCalls 获取所有调用记录
func (m *MockTool) GetCalls() []ToolInvocation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ToolInvocation{}, m.calls...)
}

// GetCallCount 获取调用次数
func (m *MockTool) GetCallCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.calls)
}

// --- 预设工具工厂 ---

type binaryArgs struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func binaryDescriptor(name, desc string) tools.Descriptor {
	return tools.Descriptor{
		Name:        name,
		Description: desc,
		Required: []tools.Parameter{
			{Name: "a", Description: "first operand", Type: tools.TypeFloat},
			{Name: "b", Description: "second operand", Type: tools.TypeFloat},
		},
	}
}

// PlusTool adds a and b.
func PlusTool() tools.Tool {
	return tools.NewTypedTool(binaryDescriptor("plus", "Adds two numbers"),
		func(_ context.Context, args binaryArgs) (float64, error) {
			return args.A + args.B, nil
		})
}

// DivideTool divides a by b and fails on division by zero.
func DivideTool() tools.Tool {
	return tools.NewTypedTool(binaryDescriptor("divide", "Divides a by b"),
		func(_ context.Context, args binaryArgs) (float64, error) {
			if args.B == 0 {
				return 0, errors.New("division by zero")
			}
			return args.A / args.B, nil
		})
}

// CalculatorRegistry 返回包含 plus 与 divide 的注册表
func CalculatorRegistry() *tools.Registry {
	return tools.MustRegistry(PlusTool(), DivideTool())
}
