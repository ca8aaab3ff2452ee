package usecase

import (
	"context"
	"testing"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/observe"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/store"
)

func echoHandlers() dispatch.HandlerRegistry {
	echo := func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error) {
		return core.NewEnvelope(n.ID, n.Label), nil
	}
	return dispatch.HandlerRegistry{
		core.NodeStart:    echo,
		core.NodeDB:       echo,
		core.NodeEndpoint: echo,
	}
}

func linearDiagram() core.Diagram {
	return core.Diagram{
		ID: "diagram-1",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Label: "start"},
			{ID: "job", Type: core.NodeDB, Label: "job"},
			{ID: "end", Type: core.NodeEndpoint, Label: "end", IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", SourceHandle: "default", TargetNode: "job", TargetHandle: "default"},
			{SourceNode: "job", SourceHandle: "default", TargetNode: "end", TargetHandle: "default"},
		},
	}
}

func TestExecuteRunsCompiledDiagramToCompletion(t *testing.T) {
	bus := event.NewBus()
	uc := New(echoHandlers(), bus, store.New(store.NewMemoryRepository(), bus), observe.NewMetricsObserver(nil), registry.New())

	state, err := uc.Execute(context.Background(), "exec-1", linearDiagram(), ExecutionOptions{}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state.Status != core.ExecCompleted {
		t.Fatalf("expected completed status, got %s", state.Status)
	}
}

func TestExecuteReturnsCompilationErrorForInvalidDiagram(t *testing.T) {
	bus := event.NewBus()
	uc := New(echoHandlers(), bus, store.New(store.NewMemoryRepository(), bus), nil, registry.New())

	invalid := core.Diagram{ID: "diagram-bad", Nodes: []core.Node{{ID: "only", Type: core.NodeType("bogus")}}}

	state, err := uc.Execute(context.Background(), "exec-2", invalid, ExecutionOptions{}, nil)
	if err == nil {
		t.Fatal("expected a compilation error")
	}
	if state.Status != core.ExecFailed {
		t.Fatalf("expected failed status, got %s", state.Status)
	}
	if _, ok := err.(*core.CompilationError); !ok {
		t.Fatalf("expected *core.CompilationError, got %T", err)
	}
}

func TestExecuteSubscribesMetricsObserverIdempotently(t *testing.T) {
	bus := event.NewBus()
	metrics := observe.NewMetricsObserver(nil)
	uc := New(echoHandlers(), bus, store.New(store.NewMemoryRepository(), bus), metrics, registry.New())

	if _, err := uc.Execute(context.Background(), "exec-3", linearDiagram(), ExecutionOptions{}, nil); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if _, err := uc.Execute(context.Background(), "exec-3", linearDiagram(), ExecutionOptions{}, nil); err != nil {
		t.Fatalf("second Execute: %v", err)
	}

	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}

	got := metrics.GetExecutionMetrics("exec-3")
	if dur := got.Nodes["end"].DurationMs; dur < 0 {
		t.Fatalf("unexpected negative duration: %d", dur)
	}
}
