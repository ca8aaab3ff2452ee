package observe

import (
	"context"
	"testing"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/event"
)

func TestMetricsObserverAccumulatesNodeDurationsAndLLMUsage(t *testing.T) {
	bus := event.NewBus()
	m := NewMetricsObserver(nil)
	m.Subscribe(bus, "exec-1")

	bus.Publish(context.Background(), event.Event{
		Type: event.NodeStarted, Scope: event.Scope{ExecutionID: "exec-1", NodeID: "n1"},
		Payload: event.NodeStartedPayload{NodeID: "n1"}, Timestamp: time.Now(),
	})
	bus.Publish(context.Background(), event.Event{
		Type: event.NodeCompleted, Scope: event.Scope{ExecutionID: "exec-1", NodeID: "n1"},
		Payload: event.NodeCompletedPayload{
			NodeID:   "n1",
			Output:   core.Envelope{Body: "ok", Meta: map[string]any{"llm_usage": core.LLMUsage{TotalTokens: 42}}},
			Duration: 10 * time.Millisecond,
		},
		Timestamp: time.Now(),
	})

	waitForBus(t, bus)

	metrics := m.GetExecutionMetrics("exec-1")
	if metrics.LLMUsage.TotalTokens != 42 {
		t.Fatalf("expected 42 total tokens, got %d", metrics.LLMUsage.TotalTokens)
	}
	nm, ok := metrics.Nodes["n1"]
	if !ok {
		t.Fatal("expected n1 to be recorded")
	}
	if nm.DurationMs != 10 {
		t.Fatalf("expected 10ms duration, got %d", nm.DurationMs)
	}
}

func TestMetricsObserverSubscribeIsIdempotentPerExecution(t *testing.T) {
	bus := event.NewBus()
	m := NewMetricsObserver(nil)

	m.Subscribe(bus, "exec-2")
	m.Subscribe(bus, "exec-2")

	bus.Publish(context.Background(), event.Event{
		Type: event.NodeCompleted, Scope: event.Scope{ExecutionID: "exec-2", NodeID: "n1"},
		Payload:   event.NodeCompletedPayload{NodeID: "n1", Duration: 5 * time.Millisecond},
		Timestamp: time.Now(),
	})
	waitForBus(t, bus)

	metrics := m.GetExecutionMetrics("exec-2")
	if metrics.Nodes["n1"].DurationMs != 5 {
		t.Fatalf("expected single subscription to record once, got duration %d", metrics.Nodes["n1"].DurationMs)
	}
}

func TestCriticalPathPicksLongestCompletedChain(t *testing.T) {
	diagram := &compiler.ExecutableDiagram{
		Nodes: []compiler.ExecutableNode{
			{Node: core.Node{ID: "a"}}, {Node: core.Node{ID: "b"}}, {Node: core.Node{ID: "c"}},
		},
		EdgesBySource: map[core.NodeID][]core.Edge{
			"a": {{SourceNode: "a", TargetNode: "b"}},
			"b": {{SourceNode: "b", TargetNode: "c"}},
		},
	}
	nodes := map[core.NodeID]NodeMetric{
		"a": {DurationMs: 10},
		"b": {DurationMs: 20},
		"c": {DurationMs: 30},
	}

	total, path := criticalPath(diagram, nodes)
	if total != 60 {
		t.Fatalf("expected total 60, got %d", total)
	}
	if len(path) != 3 || path[0] != "a" || path[2] != "c" {
		t.Fatalf("expected path a->b->c, got %v", path)
	}
}

func waitForBus(t *testing.T, bus *event.Bus) {
	t.Helper()
	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}
}
