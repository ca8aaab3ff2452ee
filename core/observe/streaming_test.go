package observe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dipeo/dipeo-core/core/event"
)

type fakeRouter struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *fakeRouter) Push(executionID string, frame Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
}

func (r *fakeRouter) snapshot() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Frame, len(r.frames))
	copy(out, r.frames)
	return out
}

func TestStreamingObserverTranslatesNodeCompletedIntoFrame(t *testing.T) {
	bus := event.NewBus()
	router := &fakeRouter{}
	obs := NewStreamingObserver(router, 0)
	stop := obs.Subscribe(bus, "exec-1")
	defer stop()

	bus.Publish(context.Background(), event.Event{
		Type: event.NodeCompleted, Scope: event.Scope{ExecutionID: "exec-1", NodeID: "n1"},
		Payload:   event.NodeCompletedPayload{NodeID: "n1", Duration: 3 * time.Millisecond},
		Timestamp: time.Now(),
	})
	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}

	frames := router.snapshot()
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	if frames[0].Type != event.NodeCompleted {
		t.Fatalf("expected NodeCompleted frame, got %s", frames[0].Type)
	}
	if frames[0].Data["node_id"] != "n1" {
		t.Fatalf("expected node_id n1 in frame data, got %v", frames[0].Data)
	}
}

func TestStreamingObserverIgnoresEventsForOtherExecutions(t *testing.T) {
	bus := event.NewBus()
	router := &fakeRouter{}
	obs := NewStreamingObserver(router, 0)
	stop := obs.Subscribe(bus, "exec-1")
	defer stop()

	bus.Publish(context.Background(), event.Event{
		Type: event.NodeCompleted, Scope: event.Scope{ExecutionID: "exec-2", NodeID: "n1"},
		Payload: event.NodeCompletedPayload{NodeID: "n1"}, Timestamp: time.Now(),
	})
	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}

	if frames := router.snapshot(); len(frames) != 0 {
		t.Fatalf("expected no frames for a different execution_id, got %d", len(frames))
	}
}

func TestStreamingObserverEmitsKeepaliveFrames(t *testing.T) {
	bus := event.NewBus()
	router := &fakeRouter{}
	obs := NewStreamingObserver(router, 5*time.Millisecond)
	stop := obs.Subscribe(bus, "exec-1")
	defer stop()

	deadline := time.After(200 * time.Millisecond)
	for {
		found := false
		for _, f := range router.snapshot() {
			if f.Type == event.Keepalive {
				found = true
			}
		}
		if found {
			break
		}
		select {
		case <-deadline:
			t.Fatal("expected at least one keepalive frame")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
