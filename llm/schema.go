package llm

import (
	"encoding/json"

	"github.com/BaSui01/agentgraph/llm/tools"
)

// ToolSchemaOf encodes a descriptor as an OpenAI-style JSON Schema object.
func ToolSchemaOf(d tools.Descriptor) ToolSchema {
	props := make(map[string]any, len(d.Required)+len(d.Optional))
	required := make([]string, 0, len(d.Required))
	for _, p := range d.Required {
		props[p.Name] = paramSchema(p.Type, p.Description, nil)
		required = append(required, p.Name)
	}
	for _, p := range d.Optional {
		props[p.Name] = paramSchema(p.Type, p.Description, p.Default)
	}

	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
	// map 与基础类型的编码不会失败
	raw, _ := json.Marshal(schema)
	return ToolSchema{Name: d.Name, Description: d.Description, Parameters: raw}
}

// ToolSchemas encodes all descriptors in order.
func ToolSchemas(descs []tools.Descriptor) []ToolSchema {
	if len(descs) == 0 {
		return nil
	}
	out := make([]ToolSchema, len(descs))
	for i, d := range descs {
		out[i] = ToolSchemaOf(d)
	}
	return out
}

func paramSchema(t tools.ParamType, description string, def any) map[string]any {
	s := map[string]any{}
	if description != "" {
		s["description"] = description
	}
	switch t.Kind {
	case tools.KindInteger:
		s["type"] = "integer"
	case tools.KindFloat:
		s["type"] = "number"
	case tools.KindBoolean:
		s["type"] = "boolean"
	case tools.KindEnum:
		s["type"] = "string"
		s["enum"] = t.Entries
	case tools.KindList:
		s["type"] = "array"
		if t.Item != nil {
			s["items"] = paramSchema(*t.Item, "", nil)
		}
	default:
		s["type"] = "string"
	}
	if def != nil {
		s["default"] = def
	}
	return s
}
