package tools

import "github.com/BaSui01/agentgraph/types"

// ScopeKind distinguishes stage tool scopes.
type ScopeKind string

const (
	// ScopeDynamic 继承当前可用工具，允许运行期通过 SetTools 调整
	ScopeDynamic ScopeKind = "dynamic"
	// ScopeStatic 固定工具列表，在运行开始前校验
	ScopeStatic ScopeKind = "static"
)

// Scope declares which tools a stage may use.
type Scope struct {
	Kind  ScopeKind
	Names []string
}

// StaticScope fixes a stage's tools to names.
func StaticScope(names ...string) Scope {
	return Scope{Kind: ScopeStatic, Names: names}
}

// DynamicScope lets a stage inherit tools and change them at run time.
func DynamicScope() Scope {
	return Scope{Kind: ScopeDynamic}
}

func (s Scope) IsStatic() bool { return s.Kind == ScopeStatic }

// Resolve returns the tools visible in the scope. A static scope must name
// at least one tool, and every name must be registered in r.
func (s Scope) Resolve(r *Registry) (*Registry, error) {
	if !s.IsStatic() {
		if r == nil {
			return EmptyRegistry(), nil
		}
		return r, nil
	}
	if len(s.Names) == 0 {
		return nil, types.NewError(types.ErrEmptyToolSet, "static tool scope requires at least one tool")
	}
	return r.Subset(s.Names...)
}
