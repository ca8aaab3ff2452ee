package subdiagram

import (
	"context"
	"errors"
	"testing"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/dispatch"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/registry"
	"github.com/dipeo/dipeo-core/core/store"
	"github.com/dipeo/dipeo-core/core/usecase"
)

type staticLoader struct {
	diagram core.Diagram
	err     error
}

func (l staticLoader) Load(ctx context.Context, name, format string, inlineData map[string]any) (core.Diagram, error) {
	return l.diagram, l.err
}

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

func twoNodeDiagram() core.Diagram {
	return core.Diagram{
		ID: "child-diagram",
		Nodes: []core.Node{
			{ID: "start", Type: core.NodeStart, Label: "start"},
			{ID: "end", Type: core.NodeEndpoint, Label: "endpoint-result", IsTerminal: true},
		},
		Edges: []core.Edge{
			{SourceNode: "start", SourceHandle: "default", TargetNode: "end", TargetHandle: "default"},
		},
	}
}

func newTestUseCase() *usecase.ExecuteDiagramUseCase {
	bus := event.NewBus()
	return usecase.New(echoHandlers(), bus, store.New(store.NewMemoryRepository(), bus), nil, registry.New())
}

func TestExecuteSingleMapsEndpointOutput(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{diagram: twoNodeDiagram()}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "sub1", Type: core.NodeSubDiagram}}

	env := ExecuteSingle(context.Background(), uc, loader, node, "parent-1")

	if env.IsError() {
		t.Fatalf("expected success, got error envelope: %v", env.Body)
	}
	if env.Body != "endpoint-result" {
		t.Fatalf("expected endpoint node's output, got %v", env.Body)
	}
	if env.Meta["execution_status"] != string(core.ExecCompleted) {
		t.Fatalf("expected completed status in meta, got %v", env.Meta["execution_status"])
	}
}

func TestExecuteSingleReturnsErrorEnvelopeOnLoadFailure(t *testing.T) {
	uc := newTestUseCase()
	loader := staticLoader{err: errors.New("diagram not found")}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "sub1", Type: core.NodeSubDiagram}}

	env := ExecuteSingle(context.Background(), uc, loader, node, "parent-1")

	if !env.IsError() {
		t.Fatalf("expected an error envelope, got %v", env.Body)
	}
}

func TestExecuteSingleReturnsErrorEnvelopeOnCompilationFailure(t *testing.T) {
	uc := newTestUseCase()
	bad := core.Diagram{ID: "bad", Nodes: []core.Node{{ID: "x", Type: core.NodeType("bogus")}}}
	loader := staticLoader{diagram: bad}
	node := &compiler.ExecutableNode{Node: core.Node{ID: "sub1", Type: core.NodeSubDiagram}}

	env := ExecuteSingle(context.Background(), uc, loader, node, "parent-1")

	if !env.IsError() {
		t.Fatalf("expected an error envelope for an invalid child diagram, got %v", env.Body)
	}
}

func TestMapOutputFallsBackToLastExecutedNodeWithoutEndpoints(t *testing.T) {
	diagram := &compiler.ExecutableDiagram{
		Nodes: []compiler.ExecutableNode{
			{Node: core.Node{ID: "a"}}, {Node: core.Node{ID: "b"}},
		},
	}
	state := core.NewExecutionState("exec", "diagram", nil, nil)
	state.ExecutedNodes = []core.NodeID{"a", "b"}
	state.NodeOutputs["a"] = core.NewEnvelope("a", "first")
	state.NodeOutputs["b"] = core.NewEnvelope("b", "last")

	got := mapOutput(diagram, state)
	if got != "last" {
		t.Fatalf("expected the last executed node's output, got %v", got)
	}
}

func TestMapOutputReturnsMapForMultipleEndpoints(t *testing.T) {
	diagram := &compiler.ExecutableDiagram{
		Nodes: []compiler.ExecutableNode{
			{Node: core.Node{ID: "a", IsTerminal: true}},
			{Node: core.Node{ID: "b", IsTerminal: true}},
		},
	}
	state := core.NewExecutionState("exec", "diagram", nil, nil)
	state.NodeOutputs["a"] = core.NewEnvelope("a", "va")
	state.NodeOutputs["b"] = core.NewEnvelope("b", "vb")

	got, ok := mapOutput(diagram, state).(map[string]any)
	if !ok {
		t.Fatalf("expected a map for multiple endpoints, got %T", mapOutput(diagram, state))
	}
	if got["a"] != "va" || got["b"] != "vb" {
		t.Fatalf("expected both endpoint outputs present, got %v", got)
	}
}
