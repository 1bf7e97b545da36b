package tools

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"

	"github.com/BaSui01/agentgraph/types"
)

// ValidateArgs checks raw call arguments against d and returns the arguments
// re-encoded with defaults for missing optional parameters. Empty input and
// JSON null are treated as an empty object. Unknown keys are kept.
func ValidateArgs(d Descriptor, raw json.RawMessage) (json.RawMessage, error) {
	args := map[string]any{}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			return nil, argsError(d.Name, "arguments are not a JSON object", err)
		}
	}

	for _, p := range d.Required {
		v, ok := args[p.Name]
		if !ok || v == nil {
			return nil, argsError(d.Name, fmt.Sprintf("missing required parameter %q", p.Name), nil)
		}
		if err := checkType(p.Type, v); err != nil {
			return nil, argsError(d.Name, fmt.Sprintf("parameter %q", p.Name), err)
		}
	}
	for _, p := range d.Optional {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Default != nil {
				args[p.Name] = p.Default
			}
			continue
		}
		if err := checkType(p.Type, v); err != nil {
			return nil, argsError(d.Name, fmt.Sprintf("parameter %q", p.Name), err)
		}
	}

	out, err := json.Marshal(args)
	if err != nil {
		return nil, argsError(d.Name, "re-encode arguments", err)
	}
	return out, nil
}

func argsError(tool, msg string, cause error) error {
	e := types.NewError(types.ErrToolArgsInvalid, fmt.Sprintf("tool %s: %s", tool, msg)).WithTool(tool)
	if cause != nil {
		e = e.WithCause(cause)
	}
	return e
}

func checkType(t ParamType, v any) error {
	switch t.Kind {
	case KindString:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("want string, got %T", v)
		}
	case KindInteger:
		n, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("want integer, got %T", v)
		}
		if _, err := n.Int64(); err != nil {
			f, ferr := n.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return fmt.Errorf("want integer, got %s", n)
			}
		}
	case KindFloat:
		n, ok := v.(json.Number)
		if !ok {
			return fmt.Errorf("want number, got %T", v)
		}
		if _, err := n.Float64(); err != nil {
			return fmt.Errorf("want number, got %s", n)
		}
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("want boolean, got %T", v)
		}
	case KindEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want enum string, got %T", v)
		}
		if !slices.Contains(t.Entries, s) {
			return fmt.Errorf("%q is not one of %v", s, t.Entries)
		}
	case KindList:
		items, ok := v.([]any)
		if !ok {
			return fmt.Errorf("want list, got %T", v)
		}
		if t.Item == nil {
			return nil
		}
		for i, item := range items {
			if err := checkType(*t.Item, item); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unsupported parameter kind %q", t.Kind)
	}
	return nil
}
