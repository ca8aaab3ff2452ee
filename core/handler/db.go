package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
)

// DB performs a file-backed read or write against the registered
// FileSystem, keyed off node.Config's {operation: "read"|"write", path}.
// Read parses the file as JSON; write serializes the merged inputs as
// JSON to path.
func DB(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	fsAny, err := dispatch.ResolveRequired(services, registry.FileSystem, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	fs, ok := fsAny.(FileSystem)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.FileSystem.Name()}}
	}

	path, _ := n.Config["path"].(string)
	operation, _ := n.Config["operation"].(string)
	if operation == "" {
		operation = "read"
	}

	switch operation {
	case "read":
		data, readErr := fs.ReadFile(path)
		if readErr != nil {
			return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: readErr}
		}
		var v any
		if jsonErr := json.Unmarshal(data, &v); jsonErr != nil {
			return core.NewEnvelope(n.ID, string(data)), nil
		}
		return core.NewEnvelope(n.ID, v), nil

	case "write":
		body := mergedVars(inputs)
		data, jsonErr := json.Marshal(body)
		if jsonErr != nil {
			return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: jsonErr}
		}
		if writeErr := fs.WriteFile(path, data); writeErr != nil {
			return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: writeErr}
		}
		return core.NewEnvelope(n.ID, map[string]any{"status": "success", "path": path}), nil

	default:
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: fmt.Errorf("unknown db operation %q", operation)}
	}
}
