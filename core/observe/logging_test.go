package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/dipeo/dipeo-core/core/event"
)

func TestLoggingObserverForwardsExecutionLogAtRequestedLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	bus := event.NewBus()
	obs := NewLoggingObserver(logger)
	obs.Subscribe(bus)

	bus.Publish(context.Background(), event.Event{
		Type:      event.ExecutionLog,
		Scope:     event.Scope{ExecutionID: "exec-1", NodeID: "n1"},
		Payload:   event.ExecutionLogPayload{Level: event.LogWarn, Message: "retrying node"},
		Timestamp: time.Now(),
	})
	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("expected a JSON log line, got %q: %v", buf.String(), err)
	}
	if record["level"] != "WARN" {
		t.Fatalf("expected WARN level, got %v", record["level"])
	}
	if record["msg"] != "retrying node" {
		t.Fatalf("expected message to be forwarded, got %v", record["msg"])
	}
	if record["execution_id"] != "exec-1" {
		t.Fatalf("expected execution_id attribute, got %v", record["execution_id"])
	}
}

func TestLoggingObserverIgnoresNonLogEvents(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	bus := event.NewBus()
	obs := NewLoggingObserver(logger)
	obs.Subscribe(bus)

	bus.Publish(context.Background(), event.Event{
		Type: event.NodeStarted, Scope: event.Scope{ExecutionID: "exec-1", NodeID: "n1"},
		Payload: event.NodeStartedPayload{NodeID: "n1"}, Timestamp: time.Now(),
	})
	if err := bus.AwaitPendingEvents(context.Background()); err != nil {
		t.Fatalf("await pending events: %v", err)
	}

	if buf.Len() != 0 {
		t.Fatalf("expected no log output for a non-log event, got %q", buf.String())
	}
}
