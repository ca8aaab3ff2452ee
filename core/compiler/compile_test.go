package compiler

import (
	"encoding/json"
	"testing"

	"github.com/dipeo/dipeo-core/core"
)

func sampleDiagram() core.Diagram {
	return core.Diagram{
		ID: "diag-1",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
			{ID: "ask", Type: core.NodePersonJob, Config: map[string]any{"person": "writer"}},
			{ID: "check", Type: core.NodeCondition},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", TargetNode: "ask", ExecutionPriority: 0},
			{SourceNode: "ask", TargetNode: "check", ExecutionPriority: 0},
			{SourceNode: "check", TargetNode: "end", Label: "true", ExecutionPriority: 1},
			{SourceNode: "check", TargetNode: "ask", Label: "false", ExecutionPriority: 0},
		},
		Persons: map[string]core.PersonMeta{
			"writer": {Name: "Writer", Service: "anthropic", Model: "claude", APIKeyRef: "key-1"},
		},
	}
}

func TestCompileSucceedsOnWellFormedDiagram(t *testing.T) {
	exec, err := Compile(sampleDiagram())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.Nodes) != 4 {
		t.Fatalf("expected 4 nodes, got %d", len(exec.Nodes))
	}
	askNode, ok := exec.NodeByID("ask")
	if !ok {
		t.Fatal("expected to find node ask")
	}
	if askNode.ResolvedAPIKey != "key-1" {
		t.Fatalf("expected resolved API key key-1, got %q", askNode.ResolvedAPIKey)
	}
}

func TestCompileIsDeterministic(t *testing.T) {
	d := sampleDiagram()

	a, errA := Compile(d)
	b, errB := Compile(d)
	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v, %v", errA, errB)
	}

	jsonA, err := json.Marshal(a.Nodes)
	if err != nil {
		t.Fatal(err)
	}
	jsonB, err := json.Marshal(b.Nodes)
	if err != nil {
		t.Fatal(err)
	}
	if string(jsonA) != string(jsonB) {
		t.Fatalf("compile output is not deterministic:\n%s\nvs\n%s", jsonA, jsonB)
	}
}

func TestCompileRejectsUnknownNodeType(t *testing.T) {
	d := sampleDiagram()
	d.Nodes[0].Type = "not_a_real_type"

	_, err := Compile(d)
	if err == nil {
		t.Fatal("expected error for unknown node type")
	}
	var compErr *core.CompilationError
	if !asCompilationError(err, &compErr) {
		t.Fatalf("expected *core.CompilationError, got %T", err)
	}
}

func TestCompileRejectsPersonJobWithUnknownPerson(t *testing.T) {
	d := sampleDiagram()
	d.Nodes[1].Config["person"] = "ghost"

	_, err := Compile(d)
	if err == nil {
		t.Fatal("expected error for unresolved person reference")
	}
}

func TestCompileRejectsConditionMissingBranch(t *testing.T) {
	d := sampleDiagram()
	// Drop the "false" edge so check only has a true branch.
	filtered := d.Edges[:0]
	for _, e := range d.Edges {
		if e.SourceNode == "check" && e.Label == "false" {
			continue
		}
		filtered = append(filtered, e)
	}
	d.Edges = filtered

	_, err := Compile(d)
	if err == nil {
		t.Fatal("expected error for condition node missing a branch")
	}
}

func TestCompileRejectsCycleWithoutIterationBudget(t *testing.T) {
	d := sampleDiagram()
	// ask->check->ask is a cycle; neither node declares MaxIterations, and
	// person_job nodes are exempt, so make check the cycle member instead by
	// routing start -> check -> check is not possible without self-loop.
	// Use a db node in place of person_job to force the unbudgeted case.
	d.Nodes[1] = core.Node{ID: "ask", Type: core.NodeDB}
	delete(d.Persons, "writer")

	_, diags := CompileWithDiagnostics(d)
	found := false
	for _, diag := range diags {
		if diag.Phase == PhaseValidate && diag.NodeID == "ask" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a validate-phase diagnostic on the unbudgeted cycle")
	}
}

func TestCompileAllowsCycleWithIterationBudget(t *testing.T) {
	d := sampleDiagram()
	d.Nodes[1] = core.Node{ID: "ask", Type: core.NodeDB, MaxIterations: 3}
	delete(d.Persons, "writer")
	// Remove the person config reference since ask is no longer person_job.
	d.Nodes[1].Config = nil

	_, err := Compile(d)
	if err != nil {
		t.Fatalf("expected cycle with iteration budget to compile, got %v", err)
	}
}

func TestCompileIndexesEdgesByPriorityDescending(t *testing.T) {
	d := core.Diagram{
		ID: "diag-2",
		Nodes: []core.Node{
			{ID: "a", Type: core.NodeStart},
			{ID: "b", Type: core.NodeDB},
			{ID: "c", Type: core.NodeDB},
			{ID: "target", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "a", TargetNode: "target", ExecutionPriority: 1},
			{SourceNode: "b", TargetNode: "target", ExecutionPriority: 5},
			{SourceNode: "c", TargetNode: "target", ExecutionPriority: 3},
		},
	}

	exec, err := Compile(d)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	edges := exec.EdgesByTarget["target"]
	if len(edges) != 3 {
		t.Fatalf("expected 3 edges, got %d", len(edges))
	}
	for i := 1; i < len(edges); i++ {
		if edges[i-1].ExecutionPriority < edges[i].ExecutionPriority {
			t.Fatalf("edges not sorted by descending priority: %+v", edges)
		}
	}
}

func TestCompileRejectsDiagramWithNoSourceNode(t *testing.T) {
	d := core.Diagram{
		ID: "diag-3",
		Nodes: []core.Node{
			{ID: "a", Type: core.NodeDB},
			{ID: "b", Type: core.NodeDB},
		},
		Edges: []core.Edge{
			{SourceNode: "a", TargetNode: "b"},
			{SourceNode: "b", TargetNode: "a"},
		},
	}

	_, err := Compile(d)
	if err == nil {
		t.Fatal("expected error: every node has an incoming edge")
	}
}

func asCompilationError(err error, target **core.CompilationError) bool {
	ce, ok := err.(*core.CompilationError)
	if !ok {
		return false
	}
	*target = ce
	return true
}
