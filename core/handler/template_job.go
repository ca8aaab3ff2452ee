package handler

import (
	"context"
	"encoding/json"
	"regexp"

	"github.com/tidwall/gjson"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/registry"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}\s]+)\s*\}\}`)

// TemplateJob renders node.Config["template"] against the merged input
// variables. When a TemplateProcessor service is registered it is used
// directly (letting callers plug in a richer templating library); absent
// one, placeholders of the form "{{ path.to.value }}" are resolved with
// gjson against the JSON-marshaled variables, avoiding a full unmarshal
// into Go structs for what is usually a handful of field lookups.
func TemplateJob(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	template, _ := n.Config["template"].(string)
	vars := mergedVars(inputs)

	if procAny, ok := registry.ResolveOK(services, registry.TemplateProcessor); ok {
		if proc, ok := procAny.(TemplateProcessor); ok {
			rendered, err := proc.Render(template, vars)
			if err != nil {
				return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
			}
			return core.NewEnvelope(n.ID, rendered), nil
		}
	}

	rendered, err := renderWithGjson(template, vars)
	if err != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}
	return core.NewEnvelope(n.ID, rendered), nil
}

func renderWithGjson(template string, vars map[string]any) (string, error) {
	data, err := json.Marshal(vars)
	if err != nil {
		return "", err
	}
	source := string(data)
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		path := placeholderPattern.FindStringSubmatch(match)[1]
		result := gjson.Get(source, path)
		if !result.Exists() {
			return match
		}
		return result.String()
	}), nil
}
