package engine

import (
	"context"
	"testing"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/registry"
)

func echoHandlers() dispatch.HandlerRegistry {
	return dispatch.HandlerRegistry{
		core.NodeStart: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, "start"), nil
		},
		core.NodeDB: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, "db-ok"), nil
		},
		core.NodeEndpoint: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, "final"), nil
		},
	}
}

func TestEngineRunsLinearDiagramToCompletion(t *testing.T) {
	d := core.Diagram{
		ID: "diag1",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
			{ID: "job", Type: core.NodeDB},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", TargetNode: "job"},
			{SourceNode: "job", TargetNode: "end"},
		},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	bus := event.NewBus()
	dispatcher := dispatch.New(echoHandlers(), bus)
	e := New(exec, dispatcher, bus, registry.New(), WithNodeReadyPollInterval(time.Millisecond))

	state := core.NewExecutionState("exec1", "diag1", nil, nil)
	err = e.Run(context.Background(), state, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != core.ExecCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.NodeStates["end"].Status != core.StatusCompleted {
		t.Fatalf("expected end node completed, got %+v", state.NodeStates["end"])
	}
	if len(state.ExecutedNodes) != 3 {
		t.Fatalf("expected 3 executed nodes, got %d: %v", len(state.ExecutedNodes), state.ExecutedNodes)
	}
}

func TestEngineEmitsExecutionStartedAndCompleted(t *testing.T) {
	d := core.Diagram{
		ID: "diag2",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
		},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	bus := event.NewBus()
	var seen []event.EventType
	done := make(chan struct{})
	bus.Subscribe([]event.EventType{event.ExecutionStarted, event.ExecutionCompleted}, func(ev event.Event) {
		seen = append(seen, ev.Type)
		if ev.Type == event.ExecutionCompleted {
			close(done)
		}
	}, event.PriorityHigh, nil)

	dispatcher := dispatch.New(echoHandlers(), bus)
	e := New(exec, dispatcher, bus, registry.New(), WithNodeReadyPollInterval(time.Millisecond))

	state := core.NewExecutionState("exec2", "diag2", nil, nil)
	if err := e.Run(context.Background(), state, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for execution_completed event")
	}

	if len(seen) != 2 || seen[0] != event.ExecutionStarted || seen[1] != event.ExecutionCompleted {
		t.Fatalf("expected [started, completed], got %v", seen)
	}
}

func TestEngineSkipsUntakenConditionBranch(t *testing.T) {
	// Mirrors spec.md §8 scenario 2: start -> condition --true--> A -->
	// endpoint and --false--> B --> endpoint, with the condition always
	// taking "false". A must never start, B must run, and the execution
	// must still reach completed rather than hang waiting on A.
	handlers := dispatch.HandlerRegistry{
		core.NodeStart: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, "start"), nil
		},
		core.NodeCondition: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, false).WithMeta("branch", "false"), nil
		},
		core.NodeDB: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			if n.ID == "A" {
				t.Error("node A on the untaken true branch must never be dispatched")
			}
			return core.NewEnvelope(n.ID, "db-ok"), nil
		},
		core.NodeEndpoint: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			return core.NewEnvelope(n.ID, "final"), nil
		},
	}

	d := core.Diagram{
		ID: "diag4",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart},
			{ID: "check", Type: core.NodeCondition},
			{ID: "A", Type: core.NodeDB},
			{ID: "B", Type: core.NodeDB},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", TargetNode: "check"},
			{SourceNode: "check", TargetNode: "A", Label: "true"},
			{SourceNode: "check", TargetNode: "B", Label: "false"},
			{SourceNode: "A", TargetNode: "end"},
			{SourceNode: "B", TargetNode: "end"},
		},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	bus := event.NewBus()
	dispatcher := dispatch.New(handlers, bus)
	e := New(exec, dispatcher, bus, registry.New(), WithNodeReadyPollInterval(time.Millisecond), WithExecutionTimeout(time.Second))

	state := core.NewExecutionState("exec4", "diag4", nil, nil)
	if err := e.Run(context.Background(), state, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state.Status != core.ExecCompleted {
		t.Fatalf("expected completed, got %s", state.Status)
	}
	if state.NodeStates["A"].Status != core.StatusSkipped {
		t.Fatalf("expected A skipped, got %+v", state.NodeStates["A"])
	}
	if state.NodeStates["B"].Status != core.StatusCompleted {
		t.Fatalf("expected B completed, got %+v", state.NodeStates["B"])
	}
	if state.NodeStates["end"].Status != core.StatusCompleted {
		t.Fatalf("expected end completed, got %+v", state.NodeStates["end"])
	}
	for _, id := range state.ExecutedNodes {
		if id == "A" {
			t.Fatal("executed_nodes must not contain the skipped node A")
		}
	}
}

func TestRequiresNodeAllowsFailureWithAlternateRoute(t *testing.T) {
	// A and B both feed endpoint; B has already completed, so a failure
	// of A must not be treated as fatal (spec.md §7).
	d := core.Diagram{
		ID: "diag5",
		Nodes: []core.Node{
			{ID: "A", Type: core.NodeDB},
			{ID: "B", Type: core.NodeDB},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "A", TargetNode: "end"},
			{SourceNode: "B", TargetNode: "end"},
		},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	state := core.NewExecutionState("exec5", "diag5", nil, nil)
	state.NodeStates["B"] = core.NodeState{Status: core.StatusCompleted}
	state.NodeOutputs["B"] = core.NewEnvelope("B", "done")

	if requiresNode(exec, state, "A") {
		t.Fatal("expected A's failure to be optional given B's already-completed alternate route")
	}
}

func TestRequiresNodeFatalWithNoAlternateRoute(t *testing.T) {
	d := core.Diagram{
		ID: "diag6",
		Nodes: []core.Node{
			{ID: "A", Type: core.NodeDB},
			{ID: "end", Type: core.NodeEndpoint, IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "A", TargetNode: "end"},
		},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	state := core.NewExecutionState("exec6", "diag6", nil, nil)

	if !requiresNode(exec, state, "A") {
		t.Fatal("expected A's failure to be fatal: end has no other route")
	}
}

func TestEngineAbortsOnExecutionTimeout(t *testing.T) {
	handlers := dispatch.HandlerRegistry{
		core.NodeStart: func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
			select {
			case <-time.After(time.Second):
				return core.NewEnvelope(n.ID, "late"), nil
			case <-ctx.Done():
				return core.Envelope{}, ctx.Err()
			}
		},
	}
	d := core.Diagram{
		ID:    "diag3",
		Nodes: []core.Node{{ID: "start", Type: core.NodeStart}},
	}
	exec, err := compiler.Compile(d)
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	bus := event.NewBus()
	dispatcher := dispatch.New(handlers, bus)
	e := New(exec, dispatcher, bus, registry.New(),
		WithExecutionTimeout(30*time.Millisecond),
		WithNodeReadyPollInterval(time.Millisecond))

	state := core.NewExecutionState("exec3", "diag3", nil, nil)
	err = e.Run(context.Background(), state, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if state.Status != core.ExecAborted {
		t.Fatalf("expected aborted status, got %s", state.Status)
	}
}
