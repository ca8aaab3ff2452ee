// Package event implements the in-process, typed publish/subscribe fabric
// described in spec.md §4.3 (C3 Event Bus): priority-ordered delivery,
// per-handler bounded queues, filtering, and seq-based replay. It is the
// single source of truth for state updates and observer fan-out.
//
// The bus itself is new relative to the teacher (dshills-langgraph-go's
// graph/emit package is fire-and-forget with no priority tiers or replay),
// but its plumbing is grounded on two teacher patterns: graph/emit/buffered.go's
// per-run event history map, and graph/checkpoint.go's ordering/idempotency
// machinery (monotonic sequence numbers, deterministic replay).
package event

import (
	"time"

	"github.com/dipeo/dipeo-core/core"
)

// EventType is the closed set of event kinds the bus transports.
type EventType string

const (
	ExecutionStarted   EventType = "execution_started"
	ExecutionCompleted EventType = "execution_completed"
	ExecutionError     EventType = "execution_error"
	NodeStarted        EventType = "node_started"
	NodeCompleted      EventType = "node_completed"
	NodeError          EventType = "node_error"
	ExecutionLog       EventType = "execution_log"
	MetricsCollected   EventType = "metrics_collected"
	WebhookReceived    EventType = "webhook_received"
	InteractivePrompt  EventType = "interactive_prompt"
	Keepalive          EventType = "keepalive"
)

// Priority determines which tier of subscribers drains an event first.
// Only two levels are defined today; spec.md §9 recommends adding a third
// level rather than overloading Filters if finer ordering is ever needed.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Scope identifies which execution (and optionally which node within it)
// an event pertains to.
type Scope struct {
	ExecutionID string
	NodeID      core.NodeID
}

// Event is one entry in an execution's event log. Seq orders events within
// one execution_id and is what Replay/ordering guarantees are defined
// over; ID is a globally unique, time-sortable ULID assigned at append
// time, used as the replay log's secondary index when events from many
// executions are merged into one store or log stream (a cross-execution
// ordering Seq alone cannot give, since it resets per execution_id).
type Event struct {
	Seq       int64
	ID        string
	Type      EventType
	Scope     Scope
	Payload   any
	Timestamp time.Time
	Meta      map[string]any
}

// LogLevel is used by ExecutionLog event payloads.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// ExecutionStartedPayload is the payload for an ExecutionStarted event.
type ExecutionStartedPayload struct {
	DiagramID string
	Variables map[string]any
}

// ExecutionCompletedPayload is the payload for an ExecutionCompleted event.
type ExecutionCompletedPayload struct {
	Status   core.ExecutionStatus
	LLMUsage core.LLMUsage
}

// ExecutionErrorPayload is the payload for an ExecutionError event.
type ExecutionErrorPayload struct {
	Kind    string // "timeout" | "aborted" | "compilation" | "node" | ...
	Message string
	NodeID  core.NodeID
}

// NodeStartedPayload is the payload for a NodeStarted event.
type NodeStartedPayload struct {
	NodeID    core.NodeID
	ExecCount int
}

// NodeCompletedPayload is the payload for a NodeCompleted event.
type NodeCompletedPayload struct {
	NodeID   core.NodeID
	Output   core.Envelope
	Duration time.Duration
}

// NodeErrorPayload is the payload for a NodeError event.
type NodeErrorPayload struct {
	NodeID core.NodeID
	Err    error
}

// ExecutionLogPayload is the payload for an ExecutionLog event.
type ExecutionLogPayload struct {
	Level   LogLevel
	Message string
}

// InteractivePromptPayload is the payload for an InteractivePrompt event, published
// by a user_response node so an external UI (out of scope per spec.md §1) may
// surface the prompt. Since no interactive transport is wired into this module,
// handlers resolve Default immediately rather than blocking on a reply.
type InteractivePromptPayload struct {
	Prompt  string
	Default any
}
