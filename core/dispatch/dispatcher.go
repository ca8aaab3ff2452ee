// Package dispatch implements spec.md §4.7 (C7 Node Dispatcher): executing
// one compiled node against its gathered input envelopes under a bounded
// concurrency semaphore. The timeout precedence (per-node override, then
// engine default, then unlimited) is grounded on
// dshills-langgraph-go/graph/timeout.go's getNodeTimeout/
// executeNodeWithTimeout; retry/backoff is grounded on graph/policy.go's
// RetryPolicy/computeBackoff, generalized from generic state S to the
// envelope-based handler signature spec.md §4.7 requires.
package dispatch

import (
	"context"
	"math/rand"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/compiler"
	"github.com/dipeo/dipeo-core/core/event"
	"github.com/dipeo/dipeo-core/core/registry"
)

// DefaultMaxConcurrent is ENGINE_MAX_CONCURRENT's default (spec.md §4.7).
const DefaultMaxConcurrent = 20

// Handler executes one node type. services is scoped to the running
// execution (and, for sub-diagram batch items, to one isolated item); ctx
// carries cancellation and the node's effective timeout deadline.
type Handler func(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry) (core.Envelope, error)

// HandlerRegistry maps a NodeType to its Handler. Unlike the ServiceRegistry
// (typed, generic), this is a plain map keyed by the closed NodeType enum;
// every value has the identical Handler signature so no type parameter is
// needed.
type HandlerRegistry map[core.NodeType]Handler

// RetryPolicy configures automatic retry of a node's handler on a
// classified-retryable error. A nil *RetryPolicy (the NodePolicy default)
// means no retries.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(error) bool
}

// NodePolicy carries the per-node overrides the dispatcher consults before
// falling back to the engine-wide defaults.
type NodePolicy struct {
	Timeout     time.Duration
	RetryPolicy *RetryPolicy
}

// Dispatcher bounds the number of concurrently in-flight handler
// invocations with a semaphore sized to maxConcurrent. Sub-diagram batch
// items are bounded by a separate semaphore obtained from
// NewBatchSemaphore, which the Dispatcher does not hold (spec.md §4.7,
// "per-batch semaphore for sub-diagram batch mode").
type Dispatcher struct {
	handlers        HandlerRegistry
	bus             *event.Bus
	sem             chan struct{}
	defaultTimeout  time.Duration
	rng             *rand.Rand
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithMaxConcurrent overrides DefaultMaxConcurrent.
func WithMaxConcurrent(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.sem = make(chan struct{}, n)
		}
	}
}

// WithDefaultNodeTimeout sets the engine-wide per-node timeout applied when
// a node's own NodePolicy declares none.
func WithDefaultNodeTimeout(t time.Duration) Option {
	return func(d *Dispatcher) { d.defaultTimeout = t }
}

// New constructs a Dispatcher. bus is used to emit node_started/
// node_completed/node_error events (spec.md §4.7, step 2-4).
func New(handlers HandlerRegistry, bus *event.Bus, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		handlers: handlers,
		bus:      bus,
		sem:      make(chan struct{}, DefaultMaxConcurrent),
		rng:      rand.New(rand.NewSource(1)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewBatchSemaphore returns an independently-sized semaphore for bounding
// concurrent sub-diagram batch items, separate from the dispatcher's own
// node-level semaphore (spec.md §4.7).
func NewBatchSemaphore(n int) chan struct{} {
	if n <= 0 {
		n = DefaultMaxConcurrent
	}
	return make(chan struct{}, n)
}

// Dispatch executes one node: gathers its input envelopes (already resolved
// by the caller into inputs keyed by target handle), emits node_started,
// invokes the registered handler under the concurrency semaphore and the
// node's effective timeout/retry policy, and emits node_completed or
// node_error.
func (d *Dispatcher) Dispatch(ctx context.Context, execID string, execCount int, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry, policy *NodePolicy) (core.Envelope, error) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return core.Envelope{}, ctx.Err()
	}
	defer func() { <-d.sem }()

	handler, ok := d.handlers[n.Type]
	if !ok {
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: &core.ServiceResolutionError{Key: string(n.Type)}}
	}

	started := time.Now()
	d.publish(ctx, execID, event.NodeStarted, n.ID, event.NodeStartedPayload{NodeID: n.ID, ExecCount: execCount})

	env, err := d.runWithRetry(ctx, n, inputs, services, handler, policy)
	if err != nil {
		d.publish(ctx, execID, event.NodeError, n.ID, event.NodeErrorPayload{NodeID: n.ID, Err: err})
		return core.Envelope{}, &core.NodeExecutionError{NodeID: n.ID, Cause: err}
	}

	d.publish(ctx, execID, event.NodeCompleted, n.ID, event.NodeCompletedPayload{NodeID: n.ID, Output: env, Duration: time.Since(started)})
	return env, nil
}

func (d *Dispatcher) runWithRetry(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry, handler Handler, policy *NodePolicy) (core.Envelope, error) {
	maxAttempts := 1
	var retry *RetryPolicy
	if policy != nil && policy.RetryPolicy != nil {
		retry = policy.RetryPolicy
		if retry.MaxAttempts > 0 {
			maxAttempts = retry.MaxAttempts
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			delay := computeBackoff(attempt-1, retry.BaseDelay, retry.MaxDelay, d.rng)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return core.Envelope{}, ctx.Err()
			}
		}

		env, err := d.runWithTimeout(ctx, n, inputs, services, handler, policy)
		if err == nil {
			return env, nil
		}
		lastErr = err

		if retry == nil || retry.Retryable == nil || !retry.Retryable(err) {
			return core.Envelope{}, err
		}
	}
	return core.Envelope{}, lastErr
}

func (d *Dispatcher) runWithTimeout(ctx context.Context, n *compiler.ExecutableNode, inputs map[string]core.Envelope, services *registry.Registry, handler Handler, policy *NodePolicy) (core.Envelope, error) {
	timeout := d.effectiveTimeout(policy)
	if timeout == 0 {
		return handler(ctx, n, inputs, services)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		env core.Envelope
		err error
	}
	done := make(chan result, 1)
	go func() {
		env, err := handler(timeoutCtx, n, inputs, services)
		done <- result{env, err}
	}()

	select {
	case r := <-done:
		return r.env, r.err
	case <-timeoutCtx.Done():
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return core.Envelope{}, &core.TimeoutError{Scope: "node", NodeID: n.ID}
		}
		return core.Envelope{}, timeoutCtx.Err()
	}
}

func (d *Dispatcher) effectiveTimeout(policy *NodePolicy) time.Duration {
	if policy != nil && policy.Timeout > 0 {
		return policy.Timeout
	}
	return d.defaultTimeout
}

func (d *Dispatcher) publish(ctx context.Context, execID string, t event.EventType, nodeID core.NodeID, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(ctx, event.Event{
		Type:      t,
		Scope:     event.Scope{ExecutionID: execID, NodeID: nodeID},
		Payload:   payload,
		Timestamp: time.Now(),
	})
}

// computeBackoff returns an exponentially-growing delay capped at maxDelay,
// with up to base worth of jitter, matching the formula documented in
// dshills-langgraph-go/graph/policy.go's computeBackoff.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base * (1 << uint(attempt))
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rng.Int63n(int64(base)))
	return delay + jitter
}
