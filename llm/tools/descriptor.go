package tools

import "fmt"

// ParamKind is the semantic type of a tool parameter.
type ParamKind string

const (
	KindString  ParamKind = "string"
	KindInteger ParamKind = "integer"
	KindFloat   ParamKind = "float"
	KindBoolean ParamKind = "boolean"
	KindEnum    ParamKind = "enum"
	KindList    ParamKind = "list"
)

// ParamType describes a parameter type. Entries is only set for enums and
// Item only for lists.
type ParamType struct {
	Kind    ParamKind  `json:"kind"`
	Entries []string   `json:"entries,omitempty"`
	Item    *ParamType `json:"item,omitempty"`
}

var (
	TypeString  = ParamType{Kind: KindString}
	TypeInteger = ParamType{Kind: KindInteger}
	TypeFloat   = ParamType{Kind: KindFloat}
	TypeBoolean = ParamType{Kind: KindBoolean}
)

// TypeEnum 创建枚举类型
func TypeEnum(entries ...string) ParamType {
	return ParamType{Kind: KindEnum, Entries: entries}
}

// TypeList 创建列表类型
func TypeList(item ParamType) ParamType {
	return ParamType{Kind: KindList, Item: &item}
}

func (t ParamType) String() string {
	switch t.Kind {
	case KindEnum:
		return fmt.Sprintf("enum%v", t.Entries)
	case KindList:
		if t.Item == nil {
			return "list"
		}
		return "list<" + t.Item.String() + ">"
	default:
		return string(t.Kind)
	}
}

// Parameter is one named tool argument.
type Parameter struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Type        ParamType `json:"type"`
	// Default 仅对可选参数生效，缺省时由校验器填充
	Default any `json:"default,omitempty"`
}

// Descriptor declares a tool's name, purpose and parameters.
// Parameter order is preserved as declared.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Required    []Parameter `json:"required,omitempty"`
	Optional    []Parameter `json:"optional,omitempty"`
}

// Parameters returns required parameters followed by optional ones.
func (d Descriptor) Parameters() []Parameter {
	out := make([]Parameter, 0, len(d.Required)+len(d.Optional))
	out = append(out, d.Required...)
	return append(out, d.Optional...)
}

// Param looks up a parameter by name. required reports whether it was found
// in the required list.
func (d Descriptor) Param(name string) (p Parameter, required bool, ok bool) {
	for _, rp := range d.Required {
		if rp.Name == name {
			return rp, true, true
		}
	}
	for _, op := range d.Optional {
		if op.Name == name {
			return op, false, true
		}
	}
	return Parameter{}, false, false
}
