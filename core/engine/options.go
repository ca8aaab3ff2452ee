package engine

import "time"

// Defaults mirror spec.md §4.7-4.8 and the teacher's engineConfig pattern
// (dshills-langgraph-go/graph/options.go: a validated, composable set of
// functional options over an internal config struct).
const (
	DefaultMaxConcurrentNodes  = 20
	DefaultNodeReadyPoll       = 10 * time.Millisecond
	DefaultExecutionTimeout    = 300 * time.Second
	DefaultEventReplayWindow   = 10_000
)

type config struct {
	maxConcurrentNodes int
	nodeReadyPoll      time.Duration
	executionTimeout   time.Duration
	eventReplayWindow  int
	minimalWiring      bool
}

func defaultConfig() config {
	return config{
		maxConcurrentNodes: DefaultMaxConcurrentNodes,
		nodeReadyPoll:      DefaultNodeReadyPoll,
		executionTimeout:   DefaultExecutionTimeout,
		eventReplayWindow:  DefaultEventReplayWindow,
	}
}

// Option configures an Engine at construction time.
type Option func(*config)

// WithMaxConcurrentNodes records a node concurrency limit in the engine's
// config (spec.md §4.7). The engine does not read it: concurrent node
// execution is bounded by the Dispatcher's own semaphore, set with
// dispatch.WithMaxConcurrent.
func WithMaxConcurrentNodes(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxConcurrentNodes = n
		}
	}
}

// WithNodeReadyPollInterval overrides how long the run loop sleeps when no
// node is currently ready (spec.md §4.8, "sleep(node_ready_poll_interval)").
func WithNodeReadyPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.nodeReadyPoll = d
		}
	}
}

// WithExecutionTimeout overrides the execution-wide deadline (spec.md §5,
// default 300s).
func WithExecutionTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.executionTimeout = d
		}
	}
}

// WithEventReplayWindow records a per-execution event retention count in
// the engine's config (spec.md §4.3). The engine does not read it and does
// not pass it to the bus; the bus's retention is set with
// event.WithReplayCap.
func WithEventReplayWindow(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.eventReplayWindow = n
		}
	}
}

// WithMinimalWiring records the DIPEO_MINIMAL_WIRING setting (spec.md §6)
// in the engine's config. The engine does not read it: it wires no
// observers itself, and observer wiring is left to its caller.
func WithMinimalWiring(b bool) Option {
	return func(c *config) { c.minimalWiring = b }
}
