package observe

import (
	"context"
	"log/slog"

	"github.com/dipeo/dipeo-core/core/event"
)

// LoggingObserver captures execution_log events and forwards them to a
// configured slog.Logger at the requested level (spec.md §4.10). It is
// dshills-langgraph-go/graph/emit/log.go's LogEmitter generalized from a
// direct Emitter call to a bus subscriber, and from LogEmitter's bespoke
// text/JSON writer to the ambient log/slog sink the rest of this module
// uses (spec.md's logging section, "structured log records via log/slog").
type LoggingObserver struct {
	logger *slog.Logger
}

// NewLoggingObserver constructs a LoggingObserver writing through logger.
// A nil logger falls back to slog.Default().
func NewLoggingObserver(logger *slog.Logger) *LoggingObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{logger: logger}
}

// Subscribe wires the observer onto bus for every execution (it does not
// scope itself to one execution_id, since a process-wide log sink is
// expected to see every run).
func (l *LoggingObserver) Subscribe(bus *event.Bus) event.SubscriptionHandle {
	return bus.Subscribe([]event.EventType{event.ExecutionLog}, l.onEvent, event.PriorityNormal, nil)
}

func (l *LoggingObserver) onEvent(ev event.Event) {
	p, ok := ev.Payload.(event.ExecutionLogPayload)
	if !ok {
		return
	}
	l.logger.LogAttrs(context.Background(), slogLevel(p.Level), p.Message,
		slog.String("execution_id", ev.Scope.ExecutionID),
		slog.String("node_id", string(ev.Scope.NodeID)),
		slog.Time("timestamp", ev.Timestamp),
	)
}

func slogLevel(l event.LogLevel) slog.Level {
	switch l {
	case event.LogDebug:
		return slog.LevelDebug
	case event.LogWarn:
		return slog.LevelWarn
	case event.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
