package handler

import (
	"context"
	"encoding/json"

	"github.com/tidwall/sjson"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/registry"
)

// DiffPatch applies node.Config["patches"] — a list of {path, value}
// objects — to its "default" input body using sjson.Set, so a handful of
// field updates never require unmarshaling the whole document into a Go
// struct and back.
func DiffPatch(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	base := "{}"
	if env, ok := inputs["default"]; ok {
		if data, err := json.Marshal(env.Body); err == nil {
			base = string(data)
		}
	}

	patches, _ := n.Config["patches"].([]any)
	for _, p := range patches {
		patch, ok := p.(map[string]any)
		if !ok {
			continue
		}
		path, _ := patch["path"].(string)
		if path == "" {
			continue
		}
		var patchErr error
		base, patchErr = sjson.Set(base, path, patch["value"])
		if patchErr != nil {
			return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: patchErr}
		}
	}

	var result any
	if err := json.Unmarshal([]byte(base), &result); err != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}
	return core.NewEnvelope(n.ID, result), nil
}
