package core

// NodeID identifies a node within a diagram. It is stable across compiles
// and executions of the same diagram.
type NodeID string

// NodeType is the closed set of operation kinds a node may declare. New
// node types are added here, not by subclassing — handlers switch on this
// tag rather than on a type hierarchy (spec.md §9, "Deep inheritance").
type NodeType string

const (
	NodeStart                NodeType = "start"
	NodePersonJob            NodeType = "person_job"
	NodeCodeJob              NodeType = "code_job"
	NodeAPIJob               NodeType = "api_job"
	NodeDB                   NodeType = "db"
	NodeCondition            NodeType = "condition"
	NodeEndpoint             NodeType = "endpoint"
	NodeHook                 NodeType = "hook"
	NodeSubDiagram           NodeType = "sub_diagram"
	NodeTemplateJob          NodeType = "template_job"
	NodeDiffPatch            NodeType = "diff_patch"
	NodeUserResponse         NodeType = "user_response"
	NodeJSONSchemaValidator  NodeType = "json_schema_validator"
)

// Valid reports whether t is one of the closed set of recognized node types.
func (t NodeType) Valid() bool {
	switch t {
	case NodeStart, NodePersonJob, NodeCodeJob, NodeAPIJob, NodeDB, NodeCondition,
		NodeEndpoint, NodeHook, NodeSubDiagram, NodeTemplateJob, NodeDiffPatch,
		NodeUserResponse, NodeJSONSchemaValidator:
		return true
	default:
		return false
	}
}

// Node is the declarative, uncompiled representation of a diagram node as
// authored by a user: its type and static configuration. Output handles
// are not declared on the node; they are named by the edges that reference
// it. The compiler (core/compiler) turns this into an ExecutableNode.
type Node struct {
	ID     NodeID
	Type   NodeType
	Label  string
	Config map[string]any

	// MaxIterations bounds how many times the scheduler may re-fire this
	// node via a feedback edge. Zero means the scheduler default of 1
	// applies, for person_job as for every other type; that default is
	// not configurable.
	MaxIterations int

	// IsTerminal marks a node (typically endpoint) whose completion the
	// compiler considers sufficient for sub-diagram output mapping,
	// resolving the Open Question in spec.md §9 in favor of an explicit
	// compiler-assigned flag rather than label string-sniffing.
	IsTerminal bool
}

// Edge is a directed binding from one node's output handle to another's
// input handle, as authored in the diagram source.
type Edge struct {
	SourceNode   NodeID
	SourceHandle string
	TargetNode   NodeID
	TargetHandle string

	ContentTypeHint ContentType
	Label           string

	// ExecutionPriority breaks ties among edges feeding the same target;
	// higher values are considered first.
	ExecutionPriority int

	// Packing controls how an array value is delivered to a batch-aware
	// input handle.
	Packing Packing
}

// Packing controls how array values are materialized at a target handle.
type Packing string

const (
	PackingPack   Packing = "pack"
	PackingSpread Packing = "spread"
)

// Diagram is the declarative domain graph as authored, prior to
// compilation: nodes, edges, person metadata, and top-level variables.
type Diagram struct {
	ID        string
	Nodes     []Node
	Edges     []Edge
	Persons   map[string]PersonMeta
	Variables map[string]any
}

// PersonMeta carries the metadata person_job nodes resolve API keys
// against (model, service, and a reference to an API key entry).
type PersonMeta struct {
	Name      string
	Service   string
	Model     string
	APIKeyRef string
}
