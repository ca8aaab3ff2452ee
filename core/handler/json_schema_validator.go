package handler

import (
	"context"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/registry"
)

// JSONSchemaValidator checks its "default" input's body against
// node.Config["schema"] (a decoded JSON Schema object) using a small
// structural subset — type, required, properties — sufficient for the
// shape checks diagram authors actually write; it is not a full JSON
// Schema implementation. A failing check raises a NodeExecutionError so
// the failure is visible the same way any other handler failure is
// (spec.md §7).
func JSONSchemaValidator(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	schema, _ := n.Config["schema"].(map[string]any)
	var body any
	if env, ok := inputs["default"]; ok {
		body = env.Body
	}

	if err := validateAgainstSchema(body, schema); err != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}
	return core.NewEnvelope(n.ID, body), nil
}

func validateAgainstSchema(value any, schema map[string]any) error {
	if schema == nil {
		return nil
	}
	if wantType, ok := schema["type"].(string); ok {
		if !matchesType(value, wantType) {
			return fmt.Errorf("expected type %q, got %T", wantType, value)
		}
	}
	obj, isObj := value.(map[string]any)
	if required, ok := schema["required"].([]any); ok {
		if !isObj {
			return fmt.Errorf("schema requires an object to check required properties, got %T", value)
		}
		for _, r := range required {
			name, _ := r.(string)
			if _, present := obj[name]; !present {
				return fmt.Errorf("missing required property %q", name)
			}
		}
	}
	if props, ok := schema["properties"].(map[string]any); ok && isObj {
		for name, propSchemaAny := range props {
			propSchema, _ := propSchemaAny.(map[string]any)
			if v, present := obj[name]; present {
				if err := validateAgainstSchema(v, propSchema); err != nil {
					return fmt.Errorf("property %q: %w", name, err)
				}
			}
		}
	}
	return nil
}

func matchesType(value any, wantType string) bool {
	switch wantType {
	case "string":
		_, ok := value.(string)
		return ok
	case "number":
		_, ok := toFloat(value)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "null":
		return value == nil
	default:
		return true
	}
}
