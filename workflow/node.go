package workflow

import (
	"context"
	"fmt"
	"reflect"

	"github.com/BaSui01/agentgraph/agent"
	"github.com/BaSui01/agentgraph/llm/tools"
	"github.com/BaSui01/agentgraph/types"
)

const (
	// StartNodeName 每个策略的入口节点名称（保留）
	StartNodeName = "__start__"
	// FinishNodeName 每个策略的终止节点名称（保留）
	FinishNodeName = "__finish__"
)

// NodeFunc is the execution function of a Node.
type NodeFunc[I, O any] func(ctx context.Context, ac *agent.Context, in I) (O, error)

type nodeKind int

const (
	kindComputed nodeKind = iota
	kindStart
	kindFinish
)

// Node is a named, typed unit of computation. Nodes are immutable once
// created; edges between them are owned by the Strategy that declares them.
type Node[I, O any] struct {
	name     string
	kind     nodeKind
	fn       NodeFunc[I, O]
	validate func(reg *tools.Registry) error
}

// NewNode creates a computed node.
func NewNode[I, O any](name string, fn NodeFunc[I, O]) *Node[I, O] {
	return &Node[I, O]{name: name, fn: fn}
}

func (n *Node[I, O]) Name() string { return n.name }

func (n *Node[I, O]) String() string { return n.name }

// runnable is the type-erased node view walked by the traversal engine.
type runnable interface {
	nodeName() string
	nodeKind() nodeKind
	run(ctx context.Context, ac *agent.Context, in any) (any, error)
	validateTools(reg *tools.Registry) error
}

func (n *Node[I, O]) nodeName() string   { return n.name }
func (n *Node[I, O]) nodeKind() nodeKind { return n.kind }

func (n *Node[I, O]) run(ctx context.Context, ac *agent.Context, in any) (any, error) {
	typed, err := assertInput[I](n.name, in)
	if err != nil {
		return nil, err
	}
	if n.fn == nil {
		return typed, nil
	}
	return n.fn(ctx, ac, typed)
}

func (n *Node[I, O]) validateTools(reg *tools.Registry) error {
	if n.validate == nil {
		return nil
	}
	return n.validate(reg)
}

// assertInput converts an erased value to T. A nil value yields T's zero
// value; any other value must hold a T.
func assertInput[T any](node string, v any) (T, error) {
	if v == nil {
		var zero T
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, types.NewError(types.ErrTypeMismatch,
			fmt.Sprintf("node %q expects %s, got %T", node, typeName[T](), v)).WithNode(node)
	}
	return typed, nil
}

func newStart[I any]() *Node[I, I] {
	return &Node[I, I]{name: StartNodeName, kind: kindStart}
}

func newFinish[O any]() *Node[O, O] {
	return &Node[O, O]{name: FinishNodeName, kind: kindFinish}
}

func typeName[T any]() string { return reflect.TypeFor[T]().String() }
