package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/registry"
)

// Hook writes the node's inputs to node.Config["file_path"], grounded on
// _examples/original_source/dipeo/application/execution/handlers/hook/file_executor.py's
// execute_file_hook: ensure the parent directory exists, serialize
// {inputs, node_id}, write it out, and return a {status, file} result.
func Hook(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
	fsAny, err := dispatch.ResolveRequired(services, registry.FileSystem, n.ID)
	if err != nil {
		return core.Envelope{}, err
	}
	fs, ok := fsAny.(FileSystem)
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: registry.FileSystem.Name()}}
	}

	path, _ := n.Config["file_path"].(string)
	if path == "" {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: fmt.Errorf("hook node has no file_path configured")}
	}

	body := map[string]any{"inputs": mergedVars(inputs), "node_id": string(n.ID)}
	data, marshalErr := json.Marshal(body)
	if marshalErr != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: marshalErr}
	}

	parent := filepath.Dir(path)
	if parent != "." && !fs.Exists(parent) {
		if mkErr := fs.MkdirAll(parent); mkErr != nil {
			return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: fmt.Errorf("file operation failed: %w", mkErr)}
		}
	}
	if writeErr := fs.WriteFile(path, data); writeErr != nil {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: fmt.Errorf("file operation failed: %w", writeErr)}
	}

	return core.NewEnvelope(n.ID, map[string]any{"status": "success", "file": path}), nil
}
