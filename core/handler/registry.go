package handler

import (
	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/dispatch"
)

// Default returns the dispatch.HandlerRegistry wiring every core.NodeType
// to its handler in this package. cmd/dipeo passes this straight to
// dispatch.New; callers that need to override or stub a handler (tests,
// alternate entry points) build their own map instead of calling Default.
func Default() dispatch.HandlerRegistry {
	return dispatch.HandlerRegistry{
		core.NodeStart:               Start,
		core.NodePersonJob:           PersonJob,
		core.NodeCodeJob:             CodeJob,
		core.NodeAPIJob:              APIJob,
		core.NodeDB:                  DB,
		core.NodeCondition:           Condition,
		core.NodeEndpoint:            Endpoint,
		core.NodeHook:                Hook,
		core.NodeSubDiagram:          SubDiagram,
		core.NodeTemplateJob:         TemplateJob,
		core.NodeDiffPatch:           DiffPatch,
		core.NodeUserResponse:        UserResponse,
		core.NodeJSONSchemaValidator: JSONSchemaValidator,
	}
}
