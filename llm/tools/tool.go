package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// ToolFunc defines the tool function signature.
type ToolFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool is an executable capability with a declared descriptor.
// Execute receives arguments already validated against Descriptor, with
// optional defaults filled in.
type Tool interface {
	Descriptor() Descriptor
	Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error)
}

type funcTool struct {
	desc Descriptor
	fn   ToolFunc
}

func (t *funcTool) Descriptor() Descriptor { return t.desc }

func (t *funcTool) Execute(ctx context.Context, args json.RawMessage) (json.RawMessage, error) {
	return t.fn(ctx, args)
}

// NewTool wraps a raw ToolFunc.
func NewTool(desc Descriptor, fn ToolFunc) Tool {
	return &funcTool{desc: desc, fn: fn}
}

// NewTypedTool 用强类型参数和返回值包装处理函数。
// 参数 JSON 解码到 A，返回值 R 编码为 JSON；R 为 string 时结果就是该文本。
func NewTypedTool[A, R any](desc Descriptor, fn func(ctx context.Context, args A) (R, error)) Tool {
	return &funcTool{
		desc: desc,
		fn: func(ctx context.Context, raw json.RawMessage) (json.RawMessage, error) {
			var args A
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, &args); err != nil {
					return nil, fmt.Errorf("decode arguments: %w", err)
				}
			}
			res, err := fn(ctx, args)
			if err != nil {
				return nil, err
			}
			out, err := json.Marshal(res)
			if err != nil {
				return nil, fmt.Errorf("encode result: %w", err)
			}
			return out, nil
		},
	}
}

// ResultText renders a tool result as Tool-Result message content.
// A JSON string is unquoted; anything else is returned verbatim.
func ResultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if raw[0] == '"' && json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}
