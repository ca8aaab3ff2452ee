package scheduler

import (
	"testing"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
)

func compileOrFail(t *testing.T, d core.Diagram) *compiler.ExecutableDiagram {
	t.Helper()
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	return exec
}

func TestReadyNodesReturnsSourceNodeFirst(t *testing.T) {
	d := core.Diagram{
		ID: "d1",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
			{ID: "job", Type: core.NodeDB},
		},
		Edges: []core.Edge{
			{SourceNode: "start", TargetNode: "job"},
		},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec1", "d1", nil, nil)

	ready := ReadyNodes(exec, state)
	if len(ready) != 1 || ready[0].ID != "start" {
		t.Fatalf("expected only start ready, got %+v", ready)
	}
}

func TestReadyNodesWaitsForAllSourcesOnDefaultJoin(t *testing.T) {
	d := core.Diagram{
		ID: "d2",
		Nodes: []core.Node{
			{ID: "a", Type: core.NodeStart},
			{ID: "b", Type: core.NodeStart},
			{ID: "join", Type: core.NodeDB},
		},
		Edges: []core.Edge{
			{SourceNode: "a", TargetNode: "join"},
			{SourceNode: "b", TargetNode: "join"},
		},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec2", "d2", nil, nil)

	state.NodeStates["a"] = core.NodeState{Status: core.StatusCompleted}
	state.NodeOutputs["a"] = core.NewEnvelope("a", "done")

	ready := ReadyNodes(exec, state)
	for _, n := range ready {
		if n.ID == "join" {
			t.Fatal("join should not be ready until both sources complete")
		}
	}

	state.NodeStates["b"] = core.NodeState{Status: core.StatusCompleted}
	state.NodeOutputs["b"] = core.NewEnvelope("b", "done")

	ready = ReadyNodes(exec, state)
	found := false
	for _, n := range ready {
		if n.ID == "join" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected join ready once both sources completed")
	}
}

func TestReadyNodesOrderedByPriorityThenID(t *testing.T) {
	d := core.Diagram{
		ID: "d3",
		Nodes: []core.Node{
			{ID: "src", Type: core.NodeStart},
			{ID: "z", Type: core.NodeDB},
			{ID: "a", Type: core.NodeDB},
			{ID: "m", Type: core.NodeDB},
		},
		Edges: []core.Edge{
			{SourceNode: "src", TargetNode: "z", ExecutionPriority: 1},
			{SourceNode: "src", TargetNode: "a", ExecutionPriority: 1},
			{SourceNode: "src", TargetNode: "m", ExecutionPriority: 5},
		},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec3", "d3", nil, nil)
	state.NodeStates["src"] = core.NodeState{Status: core.StatusCompleted}
	state.NodeOutputs["src"] = core.NewEnvelope("src", "x")

	ready := ReadyNodes(exec, state)
	var ids []core.NodeID
	for _, n := range ready {
		ids = append(ids, n.ID)
	}
	want := []core.NodeID{"m", "a", "z"}
	if len(ids) != len(want) {
		t.Fatalf("expected %v, got %v", want, ids)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, ids)
		}
	}
}

func TestConditionalBranchSkipsOtherEdge(t *testing.T) {
	d := core.Diagram{
		ID: "d4",
		Nodes: []core.Node{
			{ID: "check", Type: core.NodeCondition},
			{ID: "onTrue", Type: core.NodeDB},
			{ID: "onFalse", Type: core.NodeDB},
		},
		Edges: []core.Edge{
			{SourceNode: "check", TargetNode: "onTrue", Label: "true"},
			{SourceNode: "check", TargetNode: "onFalse", Label: "false"},
		},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec4", "d4", nil, nil)

	out := core.NewEnvelope("check", true).WithMeta("branch", "true")
	state.NodeStates["check"] = core.NodeState{Status: core.StatusCompleted, Output: &out}
	state.NodeOutputs["check"] = out

	ready := ReadyNodes(exec, state)
	var ids []core.NodeID
	for _, n := range ready {
		ids = append(ids, n.ID)
	}
	if len(ids) != 1 || ids[0] != "onTrue" {
		t.Fatalf("expected only onTrue ready, got %v", ids)
	}
}

func TestMarkNodeCompletedIncrementsExecCounts(t *testing.T) {
	d := core.Diagram{
		ID: "d5",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
		},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec5", "d5", nil, nil)
	n := &exec.Nodes[0]

	MarkNodeCompleted(exec, state, n, core.NewEnvelope(n.ID, "ok"))

	if state.ExecCounts[n.ID] != 1 {
		t.Fatalf("expected exec count 1, got %d", state.ExecCounts[n.ID])
	}
	if state.NodeStates[n.ID].Status != core.StatusCompleted {
		t.Fatalf("expected completed status, got %s", state.NodeStates[n.ID].Status)
	}
	if len(state.ExecutedNodes) != 1 || state.ExecutedNodes[0] != n.ID {
		t.Fatalf("expected executed nodes to record %s", n.ID)
	}
}

func TestIsExecutionCompleteRequiresAllNodesTerminal(t *testing.T) {
	d := core.Diagram{
		ID: "d6",
		Nodes: []core.Node{
			{ID: "a", Type: core.NodeStart},
			{ID: "b", Type: core.NodeDB},
		},
		Edges: []core.Edge{{SourceNode: "a", TargetNode: "b"}},
	}
	exec := compileOrFail(t, d)
	state := core.NewExecutionState("exec6", "d6", nil, nil)

	if IsExecutionComplete(exec, state) {
		t.Fatal("should not be complete with no node states recorded")
	}

	state.NodeStates["a"] = core.NodeState{Status: core.StatusCompleted}
	state.NodeStates["b"] = core.NodeState{Status: core.StatusCompleted}
	if !IsExecutionComplete(exec, state) {
		t.Fatal("expected complete once all nodes terminal")
	}
}
