package observe

import (
	"context"
	"sync"
	"time"

	"github.com/dipeo/dipeo-core/core/event"
)

// Frame is the wire-level shape pushed to GraphQL subscription/SSE
// consumers (spec.md §6, "emit frames {execution_id, type, data,
// timestamp}"). Translating a bus Event into a Frame is new relative to
// the teacher (transport is out of scope per spec.md §1), but the
// translate-then-push shape follows
// _examples/original_source/dipeo/application/graphql/schema/subscription_resolvers.py's
// _transform_execution_update.
type Frame struct {
	ExecutionID string
	Seq         int64
	Type        event.EventType
	Data        map[string]any
	Timestamp   time.Time
}

// Router is the minimal push surface a transport layer (GraphQL
// subscriptions, SSE) implements to receive Frames. core/observe never
// depends on a concrete transport.
type Router interface {
	Push(executionID string, frame Frame)
}

// StreamingObserver translates bus events into Frames and pushes them to a
// Router, emitting a synthetic keepalive Frame on every tick of a
// configurable interval while subscribed (spec.md §6). Keepalives are sent
// whether or not the execution produced other frames in that interval.
type StreamingObserver struct {
	router            Router
	keepaliveInterval time.Duration

	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewStreamingObserver constructs a StreamingObserver pushing Frames to
// router. A zero keepaliveInterval disables keepalive frames.
func NewStreamingObserver(router Router, keepaliveInterval time.Duration) *StreamingObserver {
	return &StreamingObserver{
		router:            router,
		keepaliveInterval: keepaliveInterval,
		active:            make(map[string]context.CancelFunc),
	}
}

// Subscribe wires the observer onto bus for executionID and starts the
// keepalive ticker. The returned stop func unsubscribes and stops the
// ticker; callers should invoke it once the execution's terminal frame has
// been delivered.
func (s *StreamingObserver) Subscribe(bus *event.Bus, executionID string) (stop func()) {
	s.mu.Lock()
	if cancel, ok := s.active[executionID]; ok {
		s.mu.Unlock()
		return func() { cancel() }
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.active[executionID] = cancel
	s.mu.Unlock()

	handle := bus.Subscribe([]event.EventType{
		event.ExecutionStarted, event.ExecutionCompleted, event.ExecutionError,
		event.NodeStarted, event.NodeCompleted, event.NodeError,
		event.ExecutionLog, event.MetricsCollected, event.InteractivePrompt,
	}, func(ev event.Event) {
		if ev.Scope.ExecutionID != executionID {
			return
		}
		s.router.Push(executionID, translateFrame(ev))
	}, event.PriorityNormal, nil)

	if s.keepaliveInterval > 0 {
		go s.keepaliveLoop(ctx, executionID)
	}

	return func() {
		cancel()
		bus.Unsubscribe(handle)
		s.mu.Lock()
		delete(s.active, executionID)
		s.mu.Unlock()
	}
}

func (s *StreamingObserver) keepaliveLoop(ctx context.Context, executionID string) {
	ticker := time.NewTicker(s.keepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.router.Push(executionID, Frame{
				ExecutionID: executionID,
				Type:        event.Keepalive,
				Timestamp:   time.Now(),
			})
		}
	}
}

// translateFrame maps an Event's typed payload to a Frame's data map, the
// shape GraphQL/SSE serializers expect.
func translateFrame(ev event.Event) Frame {
	frame := Frame{
		ExecutionID: ev.Scope.ExecutionID,
		Seq:         ev.Seq,
		Type:        ev.Type,
		Timestamp:   ev.Timestamp,
	}

	switch p := ev.Payload.(type) {
	case event.ExecutionStartedPayload:
		frame.Data = map[string]any{"diagram_id": p.DiagramID, "variables": p.Variables}
	case event.ExecutionCompletedPayload:
		frame.Data = map[string]any{"status": p.Status, "llm_usage": p.LLMUsage}
	case event.ExecutionErrorPayload:
		frame.Data = map[string]any{"kind": p.Kind, "message": p.Message, "node_id": p.NodeID}
	case event.NodeStartedPayload:
		frame.Data = map[string]any{"node_id": p.NodeID, "exec_count": p.ExecCount, "status": "running"}
	case event.NodeCompletedPayload:
		frame.Data = map[string]any{"node_id": p.NodeID, "output": p.Output, "duration_ms": p.Duration.Milliseconds(), "status": "completed"}
	case event.NodeErrorPayload:
		data := map[string]any{"node_id": p.NodeID, "status": "failed"}
		if p.Err != nil {
			data["error"] = p.Err.Error()
		}
		frame.Data = data
	case event.ExecutionLogPayload:
		frame.Data = map[string]any{"level": p.Level, "message": p.Message}
	case event.InteractivePromptPayload:
		frame.Data = map[string]any{"prompt": p.Prompt, "default": p.Default}
	default:
		frame.Data = map[string]any{}
	}
	return frame
}
