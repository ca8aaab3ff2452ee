// Package scheduler implements spec.md §4.6 (C6 Scheduler): the pure
// function that computes which compiled nodes are ready to dispatch next,
// given an ExecutableDiagram and an ExecutionState snapshot. The
// determinism contract (tie-break by execution_priority desc, then node_id
// asc) is grounded on dshills-langgraph-go/graph/scheduler.go's
// ComputeOrderKey/workHeap pattern, but this package drops the SHA-256
// hash indirection: DiPeO diagrams already carry an explicit
// execution_priority per edge, so the order key is the tuple itself
// rather than an opaque hash of (parent_node_id, edge_index).
package scheduler

import (
	"sort"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
)

// DefaultMaxIterations is the iteration budget applied to a node that
// declares none (spec.md §4.6, "default 1").
const DefaultMaxIterations = 1

// ReadyNodes returns the nodes in diagram that are eligible to dispatch
// right now, in (execution_priority desc, node_id asc) order. It never
// mutates state.
func ReadyNodes(diagram *compiler.ExecutableDiagram, state *core.ExecutionState) []*compiler.ExecutableNode {
	var ready []*compiler.ExecutableNode
	for i := range diagram.Nodes {
		n := &diagram.Nodes[i]
		if isReady(diagram, state, n) {
			ready = append(ready, n)
		}
	}
	sortReady(diagram, ready)
	return ready
}

func isReady(diagram *compiler.ExecutableDiagram, state *core.ExecutionState, n *compiler.ExecutableNode) bool {
	ns, seen := state.NodeStates[n.ID]
	status := core.StatusPending
	if seen {
		status = ns.Status
	}
	if status == core.StatusRunning {
		return false
	}
	if status != core.StatusPending {
		return false
	}
	if state.ExecCounts[n.ID] >= maxIterations(n) {
		return false
	}
	return joinSatisfied(diagram, state, n)
}

func maxIterations(n *compiler.ExecutableNode) int {
	if n.MaxIterations > 0 {
		return n.MaxIterations
	}
	return DefaultMaxIterations
}

// joinSatisfied implements the three incoming-edge join rules of spec.md
// §4.6: default join (all sources completed), conditional source (only the
// branch edge matching the source's produced label counts), and loop
// feedback (satisfied once the source has produced any output, regardless
// of its current status). A conditional edge whose branch does not match,
// or whose source was itself pruned (core.StatusSkipped), is excluded from
// the join entirely rather than treated as satisfied: if every incoming
// edge ends up excluded this way, n has no live path left into it and the
// join can never be satisfied (the engine is responsible for eventually
// marking such a node core.StatusSkipped so it still reaches terminal).
func joinSatisfied(diagram *compiler.ExecutableDiagram, state *core.ExecutionState, n *compiler.ExecutableNode) bool {
	incoming := diagram.EdgesByTarget[n.ID]
	if len(incoming) == 0 {
		// Source node: ready as soon as pending, no join to satisfy.
		return true
	}

	required := 0
	for _, e := range incoming {
		if edgeIsFeedback(diagram, n.ID, e.SourceNode) {
			if _, produced := state.NodeOutputs[e.SourceNode]; !produced {
				return false
			}
			required++
			continue
		}

		srcNode, ok := diagram.NodeByID(e.SourceNode)
		if !ok {
			return false
		}
		srcState, ok := state.NodeStates[e.SourceNode]
		if !ok || !srcState.Status.Terminal() {
			return false
		}
		if srcState.Status == core.StatusSkipped {
			// The source never ran (its own upstream branch pruned it):
			// this edge carries no requirement at all.
			continue
		}
		if srcState.Status != core.StatusCompleted {
			// A failed source never satisfies a join; the engine decides
			// separately whether that failure is fatal to the run.
			return false
		}

		if srcNode.Type == core.NodeCondition && srcState.Output != nil {
			branch, _ := srcState.Output.Meta["branch"].(string)
			if branch != "" && e.Label != "" && branch != e.Label {
				// The non-taken branch's edge is pruned: it does not
				// block, but it also does not count toward readiness.
				continue
			}
		}
		required++
	}
	// If every incoming edge was pruned or fed by a skipped source, n is
	// itself unreachable and must never be dispatched.
	return required > 0
}

// edgeIsFeedback reports whether the edge from source to target closes a
// cycle back to a node the source (transitively) depends on — i.e. it is a
// loop feedback edge rather than a forward dependency. Forward-only graphs
// never have feedback edges; a cycle is only possible when compile-time
// validation has already confirmed it carries an iteration budget.
func edgeIsFeedback(diagram *compiler.ExecutableDiagram, target, source core.NodeID) bool {
	visited := map[core.NodeID]bool{}
	var reaches func(from, want core.NodeID) bool
	reaches = func(from, want core.NodeID) bool {
		if from == want {
			return true
		}
		if visited[from] {
			return false
		}
		visited[from] = true
		for _, e := range diagram.EdgesBySource[from] {
			if reaches(e.TargetNode, want) {
				return true
			}
		}
		return false
	}
	// source -> target is feedback iff target can already reach source
	// through some other forward path, i.e. completing target again would
	// close a loop back through source.
	return reaches(target, source)
}

func sortReady(diagram *compiler.ExecutableDiagram, nodes []*compiler.ExecutableNode) {
	priority := make(map[core.NodeID]int, len(nodes))
	for _, n := range nodes {
		best := 0
		for _, e := range diagram.EdgesByTarget[n.ID] {
			if e.ExecutionPriority > best {
				best = e.ExecutionPriority
			}
		}
		priority[n.ID] = best
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		pi, pj := priority[nodes[i].ID], priority[nodes[j].ID]
		if pi != pj {
			return pi > pj
		}
		return nodes[i].ID < nodes[j].ID
	})
}

// IsExecutionComplete reports whether every node has reached a terminal
// status (including nodes the engine marked skipped when pruning an
// untaken conditional branch), matching the engine's break condition in
// spec.md §4.8.
func IsExecutionComplete(diagram *compiler.ExecutableDiagram, state *core.ExecutionState) bool {
	for _, n := range diagram.Nodes {
		ns, ok := state.NodeStates[n.ID]
		if !ok {
			return false
		}
		if !ns.Status.Terminal() {
			return false
		}
	}
	return true
}

// MarkNodeCompleted records n's completion in state and, if n has
// remaining iteration budget and at least one incoming feedback edge,
// re-enables it by resetting its status to pending while preserving
// ExecCounts; whether it fires again is left to the join check of the next
// ReadyNodes call (spec.md §4.6, mark_node_completed).
func MarkNodeCompleted(diagram *compiler.ExecutableDiagram, state *core.ExecutionState, n *compiler.ExecutableNode, output core.Envelope) {
	now := state.NodeStates[n.ID]
	state.NodeOutputs[n.ID] = output
	state.ExecCounts[n.ID]++
	state.ExecutedNodes = append(state.ExecutedNodes, n.ID)

	status := core.StatusCompleted
	if state.ExecCounts[n.ID] >= maxIterations(n) {
		if hasIncomingFeedback(diagram, n.ID) {
			status = core.StatusMaxIterReached
		}
	}
	now.Status = status
	state.NodeStates[n.ID] = now

	if status == core.StatusCompleted && hasIncomingFeedback(diagram, n.ID) && state.ExecCounts[n.ID] < maxIterations(n) {
		// A loop body node stays eligible: reset to pending for another
		// round once its feedback sources have produced again. The
		// scheduler's join check on the next ReadyNodes call re-validates
		// readiness, so resetting here is safe even if the loop has in
		// fact terminated (no further sources will produce, so it simply
		// never becomes ready again).
		reset := state.NodeStates[n.ID]
		reset.Status = core.StatusPending
		state.NodeStates[n.ID] = reset
	}
}

func hasIncomingFeedback(diagram *compiler.ExecutableDiagram, target core.NodeID) bool {
	for _, e := range diagram.EdgesByTarget[target] {
		if edgeIsFeedback(diagram, target, e.SourceNode) {
			return true
		}
	}
	return false
}
