package main

import (
	"context"
	"errors"

	"github.com/BaSui01/agentgraph/llm/tools"
)

// =============================================================================
// 🧮 内置计算器工具
// =============================================================================

type operands struct {
	A float64 `json:"a"`
	B float64 `json:"b"`
}

func binaryTool(name, desc string, fn func(a, b float64) (float64, error)) tools.Tool {
	d := tools.Descriptor{
		Name:        name,
		Description: desc,
		Required: []tools.Parameter{
			{Name: "a", Description: "first operand", Type: tools.TypeFloat},
			{Name: "b", Description: "second operand", Type: tools.TypeFloat},
		},
	}
	return tools.NewTypedTool(d, func(_ context.Context, args operands) (float64, error) {
		return fn(args.A, args.B)
	})
}

var errDivideByZero = errors.New("division by zero")

func calculatorRegistry() *tools.Registry {
	return tools.MustRegistry(
		binaryTool("plus", "Adds b to a", func(a, b float64) (float64, error) { return a + b, nil }),
		binaryTool("minus", "Subtracts b from a", func(a, b float64) (float64, error) { return a - b, nil }),
		binaryTool("multiply", "Multiplies a by b", func(a, b float64) (float64, error) { return a * b, nil }),
		binaryTool("divide", "Divides a by b", func(a, b float64) (float64, error) {
			if b == 0 {
				return 0, errDivideByZero
			}
			return a / b, nil
		}),
	)
}
