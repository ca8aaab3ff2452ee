// Package compiler implements spec.md §4.5 (C5 Diagram Compiler): turning
// a declarative core.Diagram into an ExecutableDiagram with resolved
// handles, indexed edges, and static checks. The phase structure
// (Resolve -> Bind -> Validate -> Index, each contributing diagnostics) is
// grounded on dshills-langgraph-go/graph/checkpoint.go's layered
// validation style (RetryPolicy.Validate returning sentinel-wrapped
// errors), generalized here into an accumulating diagnostics list instead
// of a single bool/error return, since a diagram can have many independent
// problems a tool wants to report at once.
package compiler

import "github.com/dipeo/dipeo-core/core"

// ExecutableNode is a compiled node: its declared shape plus whatever the
// Bind phase resolved against diagram metadata (e.g. a person_job node's
// API key, service, and model).
type ExecutableNode struct {
	core.Node
	ResolvedAPIKey  string
	ResolvedService string
	ResolvedModel   string
}

// ExecutableDiagram is the compiler's output: everything the scheduler,
// dispatcher, and engine need, with no further lookups into the original
// core.Diagram required at run time.
type ExecutableDiagram struct {
	Nodes         []ExecutableNode
	NodesByID     map[core.NodeID]*ExecutableNode
	EdgesByTarget map[core.NodeID][]core.Edge
	EdgesBySource map[core.NodeID][]core.Edge
	Metadata      map[string]any
	Diagnostics   []Diagnostic
}

// NodeByID looks up a compiled node, returning (nil, false) if absent.
func (d *ExecutableDiagram) NodeByID(id core.NodeID) (*ExecutableNode, bool) {
	n, ok := d.NodesByID[id]
	return n, ok
}
