package compiler

import (
	"fmt"
	"sort"

	"github.com/dipeo/dipeo-core/core"
)

// Compile runs all four phases and returns an error wrapping the
// diagnostics if any phase produced a SeverityError finding. Callers that
// want both the partial result and the diagnostics for tooling should use
// CompileWithDiagnostics instead.
func Compile(d core.Diagram) (*ExecutableDiagram, error) {
	exec, diags := CompileWithDiagnostics(d)
	for _, diag := range diags {
		if diag.Severity == SeverityError {
			return nil, &core.CompilationError{Diagnostics: diags}
		}
	}
	return exec, nil
}

// CompileWithDiagnostics always returns the best-effort ExecutableDiagram
// together with every diagnostic collected across all phases, regardless
// of severity. Compilation is deterministic: the same core.Diagram value
// always yields a byte-identical ExecutableDiagram once both are
// marshaled, because every phase below only ever produces output ordered
// by stable keys (declared node order, then node ID) — never map
// iteration order.
func CompileWithDiagnostics(d core.Diagram) (*ExecutableDiagram, []Diagnostic) {
	var diags []Diagnostic

	nodes, resolveDiags := resolvePhase(d)
	diags = append(diags, resolveDiags...)

	bindDiags := bindPhase(d, nodes)
	diags = append(diags, bindDiags...)

	exec := &ExecutableDiagram{
		Nodes:     nodes,
		NodesByID: make(map[core.NodeID]*ExecutableNode, len(nodes)),
		Metadata:  map[string]any{"diagram_id": d.ID},
	}
	for i := range exec.Nodes {
		exec.NodesByID[exec.Nodes[i].ID] = &exec.Nodes[i]
	}

	validateDiags := validatePhase(d, exec)
	diags = append(diags, validateDiags...)

	indexPhase(d, exec)

	exec.Diagnostics = diags
	return exec, diags
}

// resolvePhase canonicalizes node types and rejects unknown ones.
func resolvePhase(d core.Diagram) ([]ExecutableNode, []Diagnostic) {
	var diags []Diagnostic
	nodes := make([]ExecutableNode, 0, len(d.Nodes))
	for _, n := range d.Nodes {
		if !n.Type.Valid() {
			diags = append(diags, Diagnostic{
				Phase: PhaseResolve, Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("unknown node type %q", n.Type),
			})
			continue
		}
		nodes = append(nodes, ExecutableNode{Node: n})
	}
	return nodes, diags
}

// bindPhase resolves API keys referenced by person_job nodes against
// diagram.Persons metadata and attaches the resolved configuration.
func bindPhase(d core.Diagram, nodes []ExecutableNode) []Diagnostic {
	var diags []Diagnostic
	for i := range nodes {
		n := &nodes[i]
		if n.Type != core.NodePersonJob {
			continue
		}
		personRef, _ := n.Config["person"].(string)
		if personRef == "" {
			diags = append(diags, Diagnostic{
				Phase: PhaseBind, Severity: SeverityError, NodeID: n.ID,
				Message: "person_job node does not reference a person",
			})
			continue
		}
		meta, ok := d.Persons[personRef]
		if !ok {
			diags = append(diags, Diagnostic{
				Phase: PhaseBind, Severity: SeverityError, NodeID: n.ID,
				Message: fmt.Sprintf("person_job references unknown person %q", personRef),
			})
			continue
		}
		n.ResolvedAPIKey = meta.APIKeyRef
		n.ResolvedService = meta.Service
		n.ResolvedModel = meta.Model
	}
	return diags
}

// validatePhase performs topological sanity checks: at least one source
// node, every edge names a known source and target node, conditional nodes
// have both true/false outputs, and every cycle passes through a node
// declaring an iteration budget. Edge handle names are not checked.
func validatePhase(d core.Diagram, exec *ExecutableDiagram) []Diagnostic {
	var diags []Diagnostic

	if len(exec.Nodes) == 0 {
		return append(diags, Diagnostic{Phase: PhaseValidate, Severity: SeverityError, Message: "diagram has no nodes"})
	}

	hasIncoming := make(map[core.NodeID]bool, len(exec.Nodes))
	for _, e := range d.Edges {
		if _, ok := exec.NodesByID[e.SourceNode]; !ok {
			diags = append(diags, Diagnostic{
				Phase: PhaseValidate, Severity: SeverityError, NodeID: e.SourceNode,
				Message: fmt.Sprintf("edge references unknown source node %q", e.SourceNode),
			})
			continue
		}
		if _, ok := exec.NodesByID[e.TargetNode]; !ok {
			diags = append(diags, Diagnostic{
				Phase: PhaseValidate, Severity: SeverityError, NodeID: e.TargetNode,
				Message: fmt.Sprintf("edge references unknown target node %q", e.TargetNode),
			})
			continue
		}
		hasIncoming[e.TargetNode] = true
	}

	sourceCount := 0
	for _, n := range exec.Nodes {
		if !hasIncoming[n.ID] {
			sourceCount++
		}
	}
	if sourceCount == 0 {
		diags = append(diags, Diagnostic{Phase: PhaseValidate, Severity: SeverityError, Message: "diagram has no source node"})
	}

	for _, n := range exec.Nodes {
		if n.Type != core.NodeCondition {
			continue
		}
		var hasTrue, hasFalse bool
		for _, e := range d.Edges {
			if e.SourceNode != n.ID {
				continue
			}
			switch e.Label {
			case "true":
				hasTrue = true
			case "false":
				hasFalse = true
			}
		}
		if !hasTrue || !hasFalse {
			diags = append(diags, Diagnostic{
				Phase: PhaseValidate, Severity: SeverityError, NodeID: n.ID,
				Message: "condition node must have both true and false outgoing edges",
			})
		}
	}

	diags = append(diags, checkCyclesHaveBudget(d, exec)...)
	return diags
}

// checkCyclesHaveBudget finds every cycle in the edge graph and requires
// that at least one node on the cycle declares MaxIterations > 0 or is a
// person_job. A person_job without a declared budget runs under the
// scheduler's default budget of 1, the same as any other node type.
// Cycles are otherwise legal (spec.md §4.5, "loops are legal").
func checkCyclesHaveBudget(d core.Diagram, exec *ExecutableDiagram) []Diagnostic {
	adj := make(map[core.NodeID][]core.NodeID)
	for _, e := range d.Edges {
		adj[e.SourceNode] = append(adj[e.SourceNode], e.TargetNode)
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[core.NodeID]int, len(exec.Nodes))
	var diags []Diagnostic

	var stack []core.NodeID
	var visit func(n core.NodeID)
	visit = func(n core.NodeID) {
		color[n] = gray
		stack = append(stack, n)
		for _, next := range adj[n] {
			switch color[next] {
			case white:
				visit(next)
			case gray:
				diags = append(diags, cycleDiagnosticIfUnbudgeted(exec, stack, next)...)
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
	}

	// Deterministic traversal order: declared node order.
	for _, n := range exec.Nodes {
		if color[n.ID] == white {
			visit(n.ID)
		}
	}
	return diags
}

func cycleDiagnosticIfUnbudgeted(exec *ExecutableDiagram, stack []core.NodeID, closesAt core.NodeID) []Diagnostic {
	start := 0
	for i, id := range stack {
		if id == closesAt {
			start = i
			break
		}
	}
	cycle := stack[start:]
	for _, id := range cycle {
		if n, ok := exec.NodesByID[id]; ok {
			if n.MaxIterations > 0 || n.Type == core.NodePersonJob {
				return nil
			}
		}
	}
	return []Diagnostic{{
		Phase: PhaseValidate, Severity: SeverityError, NodeID: closesAt,
		Message: "cycle does not pass through any node declaring an iteration budget",
	}}
}

// indexPhase builds the adjacency maps and sorts each target's incoming
// edges by ExecutionPriority desc, then insertion order (spec.md §4.5).
func indexPhase(d core.Diagram, exec *ExecutableDiagram) {
	byTarget := make(map[core.NodeID][]core.Edge)
	bySource := make(map[core.NodeID][]core.Edge)

	for i, e := range d.Edges {
		if _, ok := exec.NodesByID[e.SourceNode]; !ok {
			continue
		}
		if _, ok := exec.NodesByID[e.TargetNode]; !ok {
			continue
		}
		tagged := e
		// Insertion order among equal priorities is kept by the stable
		// sort below, so the loop index itself is not used.
		_ = i
		byTarget[e.TargetNode] = append(byTarget[e.TargetNode], tagged)
		bySource[e.SourceNode] = append(bySource[e.SourceNode], tagged)
	}

	for target, edges := range byTarget {
		edges := edges
		sort.SliceStable(edges, func(i, j int) bool {
			return edges[i].ExecutionPriority > edges[j].ExecutionPriority
		})
		byTarget[target] = edges
	}

	exec.EdgesByTarget = byTarget
	exec.EdgesBySource = bySource
}
