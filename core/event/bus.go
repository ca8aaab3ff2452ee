package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dipeo/dipeo-core/core"
)

// Bus is the single-process, in-goroutine publish/subscribe fabric
// described in spec.md §4.3. Publishers enqueue; each subscription drains
// its own bounded queue on a dedicated goroutine, so a single handler
// always observes events in publish order. HIGH-priority subscriptions for
// an event are drained to completion before NORMAL-priority subscriptions
// are even notified of that same event — the barrier that lets the State
// Store persist state before observers see it.
type Bus struct {
	mu     sync.RWMutex
	execs  map[string]*executionLog
	subs   map[int64]*subscription
	nextID int64

	queueDepth           int
	backpressureDeadline time.Duration
	replayCap            int
	terminalGrace        time.Duration

	onDropped func(handlerID int64, ev Event)
	// pendingHigh counts in-flight HIGH deliveries still awaiting their ack,
	// used by AwaitPendingEvents to know when the bus has truly drained.
	pendingHigh atomic.Int64
	pendingNorm atomic.Int64
}

// Option configures a Bus at construction time.
type Option func(*Bus)

// WithQueueDepth overrides the default per-subscription queue bound.
func WithQueueDepth(n int) Option {
	return func(b *Bus) { b.queueDepth = n }
}

// WithBackpressureDeadline overrides how long Publish blocks on a full
// queue before dropping the event for that subscription.
func WithBackpressureDeadline(d time.Duration) Option {
	return func(b *Bus) { b.backpressureDeadline = d }
}

// WithReplayCap overrides how many events are retained per execution.
func WithReplayCap(n int) Option {
	return func(b *Bus) { b.replayCap = n }
}

// NewBus constructs a Bus ready to accept subscriptions and publishes.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		execs:                make(map[string]*executionLog),
		subs:                 make(map[int64]*subscription),
		queueDepth:           DefaultQueueDepth,
		backpressureDeadline: DefaultBackpressureDeadline,
		replayCap:            DefaultReplayCap,
		terminalGrace:        DefaultTerminalGrace,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Bus) logFor(executionID string) *executionLog {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.execs[executionID]
	if !ok {
		// Housekeeping: drop logs whose execution terminated more than
		// terminalGrace ago before creating a new one.
		now := time.Now()
		for id, old := range b.execs {
			if old.expired(now, b.terminalGrace) {
				delete(b.execs, id)
			}
		}
		l = newExecutionLog(b.replayCap)
		b.execs[executionID] = l
	}
	return l
}

// Subscribe registers handler for the given event types. Re-subscribing
// the same handler value does not change delivery semantics — the bus has
// no notion of handler identity beyond the returned SubscriptionHandle, so
// calling Subscribe twice with equivalent arguments yields two independent
// subscriptions only if the caller keeps both handles; callers that want
// idempotent subscription (spec.md §8, "Idempotent subscribe") must guard
// at the call site by tracking whether they already hold a handle, which
// is exactly what observe.MetricsObserver.Subscribe does.
func (b *Bus) Subscribe(types []EventType, handler Handler, priority Priority, filter Filter) SubscriptionHandle {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	sub := newSubscription(SubscriptionHandle{id: id}, types, priority, filter, handler, b.queueDepth)
	sub.onDropped = func(s *subscription, ev Event) { b.handleDropped(s, ev) }
	sub.onHandlerPanic = func(s *subscription, ev Event, r any) { b.handlePanic(s, ev, r) }
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.run()
	return sub.handle
}

// Unsubscribe stops delivery to the subscription and drains its goroutine.
func (b *Bus) Unsubscribe(h SubscriptionHandle) {
	b.mu.Lock()
	sub, ok := b.subs[h.id]
	if ok {
		delete(b.subs, h.id)
	}
	b.mu.Unlock()
	if ok {
		sub.close()
	}
}

// Publish assigns the event's seq (monotonic per execution_id), appends it
// to that execution's replay log, and fans it out: HIGH-priority
// subscriptions are delivered and awaited first, then NORMAL-priority
// subscriptions are delivered. Publish is non-blocking with respect to
// NORMAL subscribers' actual processing, but it does wait for HIGH
// subscribers to acknowledge receipt of (i.e. have their handler invoked
// with) this event before returning, which is the ordering guarantee
// spec.md §4.3 requires.
func (b *Bus) Publish(ctx context.Context, ev Event) Event {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	l := b.logFor(ev.Scope.ExecutionID)
	stored := l.append(ev)

	if isTerminalExecutionEvent(stored.Type) {
		l.markTerminal(stored.Timestamp)
	}

	high, normal := b.matchingSubs(stored)

	acks := make([]chan struct{}, 0, len(high))
	for _, sub := range high {
		b.pendingHigh.Add(1)
		if ack := sub.enqueue(ctx, stored, b.backpressureDeadline); ack != nil {
			acks = append(acks, ack)
		}
	}
	for _, ack := range acks {
		<-ack
	}
	b.pendingHigh.Add(-int64(len(high)))

	// NORMAL subscriptions are enqueued in turn on the publishing goroutine,
	// so each subscription's queue receives events in publish order.
	for _, sub := range normal {
		b.pendingNorm.Add(1)
		sub.enqueue(ctx, stored, b.backpressureDeadline)
		b.pendingNorm.Add(-1)
	}

	return stored
}

func isTerminalExecutionEvent(t EventType) bool {
	return t == ExecutionCompleted || t == ExecutionError
}

func (b *Bus) matchingSubs(ev Event) (high, normal []*subscription) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if !sub.matches(ev) {
			continue
		}
		if sub.priority == PriorityHigh {
			high = append(high, sub)
		} else {
			normal = append(normal, sub)
		}
	}
	return high, normal
}

// Replay returns every event retained for executionID with Seq > fromSeq,
// in order. Events outside the retention window are not returned.
func (b *Bus) Replay(executionID string, fromSeq int64) []Event {
	b.mu.RLock()
	l, ok := b.execs[executionID]
	b.mu.RUnlock()
	if !ok {
		return nil
	}
	return l.since(fromSeq)
}

// AwaitPendingEvents blocks until every in-flight Publish call for this
// bus has finished handing its event to the subscriptions' queues. HIGH
// handlers have run by then; NORMAL handlers may still be processing what
// was queued, and this does not wait for them. The engine calls this
// before declaring an execution complete (spec.md §4.8).
func (b *Bus) AwaitPendingEvents(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		if b.pendingNorm.Load() == 0 && b.pendingHigh.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (b *Bus) handleDropped(sub *subscription, ev Event) {
	slog.Warn("event bus: event dropped for subscription",
		"subscription", sub.handle.id, "event_type", ev.Type,
		"execution_id", ev.Scope.ExecutionID, "seq", ev.Seq)
	if b.onDropped != nil {
		b.onDropped(sub.handle.id, ev)
	}
}

// handlePanic logs a recovered handler panic as a TransportError and
// re-emits it as an execution_log(level=ERROR) event for the same scope. A
// panic while handling an execution_log event is only logged, so a failing
// log observer cannot feed itself. The re-emit runs on its own goroutine
// because the panicking subscription's worker has not yet closed its ack.
func (b *Bus) handlePanic(sub *subscription, ev Event, recovered any) {
	terr := &core.TransportError{Handler: fmt.Sprintf("subscription-%d", sub.handle.id), Cause: fmt.Errorf("panic: %v", recovered)}
	slog.Error("event bus: handler failed", "event_type", ev.Type,
		"execution_id", ev.Scope.ExecutionID, "error", terr)
	if ev.Type == ExecutionLog {
		return
	}
	logEv := Event{Type: ExecutionLog, Scope: ev.Scope, Payload: ExecutionLogPayload{Level: LogError, Message: terr.Error()}}
	go b.Publish(context.Background(), logEv)
}
