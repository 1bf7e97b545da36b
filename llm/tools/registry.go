package tools

import (
	"fmt"

	"github.com/BaSui01/agentgraph/types"
)

// Registry maps tool names to tools. It is immutable after construction and
// safe to share between concurrent branches without locking.
type Registry struct {
	tools map[string]Tool
	order []string
}

// NewRegistry builds a registry from ts. Duplicate names and an empty tool
// set are rejected; use EmptyRegistry for agents without tools.
func NewRegistry(ts ...Tool) (*Registry, error) {
	if len(ts) == 0 {
		return nil, types.NewError(types.ErrEmptyToolSet, "tool registry requires at least one tool")
	}
	r := &Registry{tools: make(map[string]Tool, len(ts)), order: make([]string, 0, len(ts))}
	for _, t := range ts {
		name := t.Descriptor().Name
		if name == "" {
			return nil, types.NewError(types.ErrGraphInvalid, "tool descriptor has empty name")
		}
		if _, dup := r.tools[name]; dup {
			return nil, types.NewError(types.ErrDuplicateTool, fmt.Sprintf("tool %q registered twice", name)).WithTool(name)
		}
		r.tools[name] = t
		r.order = append(r.order, name)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error.
func MustRegistry(ts ...Tool) *Registry {
	r, err := NewRegistry(ts...)
	if err != nil {
		panic(err)
	}
	return r
}

// EmptyRegistry returns a registry with no tools.
func EmptyRegistry() *Registry {
	return &Registry{tools: map[string]Tool{}}
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	if r == nil {
		return nil, false
	}
	t, ok := r.tools[name]
	return t, ok
}

// Descriptor returns the descriptor of the tool registered under name.
func (r *Registry) Descriptor(name string) (Descriptor, bool) {
	t, ok := r.Get(name)
	if !ok {
		return Descriptor{}, false
	}
	return t.Descriptor(), true
}

func (r *Registry) Has(name string) bool {
	_, ok := r.Get(name)
	return ok
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.order...)
}

// Descriptors returns all descriptors in registration order.
func (r *Registry) Descriptors() []Descriptor {
	if r == nil {
		return nil
	}
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name].Descriptor())
	}
	return out
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.order)
}

// Merge returns a new registry holding the tools of r followed by other's.
func (r *Registry) Merge(other *Registry) (*Registry, error) {
	all := make([]Tool, 0, r.Len()+other.Len())
	for _, name := range r.Names() {
		all = append(all, r.tools[name])
	}
	for _, name := range other.Names() {
		all = append(all, other.tools[name])
	}
	if len(all) == 0 {
		return EmptyRegistry(), nil
	}
	return NewRegistry(all...)
}

// Subset returns a registry restricted to names, in the given order.
// Unknown names fail with TOOL_SCOPE_INVALID.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	sub := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, types.NewError(types.ErrToolScopeInvalid,
				fmt.Sprintf("tool %q is not in the registry", name)).WithTool(name)
		}
		sub = append(sub, t)
	}
	return NewRegistry(sub...)
}
