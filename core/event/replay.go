package event

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultReplayCap bounds how many events are retained per execution;
// past it the oldest are evicted, whether or not the execution has
// terminated (see DefaultTerminalGrace for removal of the whole log).
const DefaultReplayCap = 10_000

// DefaultTerminalGrace is how long a terminated execution's replay log is
// kept before it is eligible for eviction by the bus's housekeeping, which
// runs whenever the bus creates the log of a new execution.
const DefaultTerminalGrace = 5 * time.Minute

// executionLog holds the monotonic sequence counter and retained event
// window for a single execution_id.
type executionLog struct {
	mu         sync.Mutex
	nextSeq    int64
	entropy    *ulid.MonotonicEntropy
	events     []Event
	cap        int
	terminalAt *time.Time
}

func newExecutionLog(cap int) *executionLog {
	if cap <= 0 {
		cap = DefaultReplayCap
	}
	return &executionLog{cap: cap, entropy: ulid.Monotonic(rand.Reader, 0)}
}

// append assigns the next seq and a fresh ULID to ev and stores it,
// evicting the oldest retained event if the log is at capacity. It
// returns the event with both populated.
func (l *executionLog) append(ev Event) Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextSeq++
	ev.Seq = l.nextSeq
	ev.ID = ulid.MustNew(ulid.Timestamp(time.Now()), l.entropy).String()
	l.events = append(l.events, ev)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
	return ev
}

// since returns every retained event with Seq > fromSeq, in order.
func (l *executionLog) since(fromSeq int64) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Event, 0, len(l.events))
	for _, ev := range l.events {
		if ev.Seq > fromSeq {
			out = append(out, ev)
		}
	}
	return out
}

func (l *executionLog) markTerminal(at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.terminalAt == nil {
		l.terminalAt = &at
	}
}

func (l *executionLog) expired(now time.Time, grace time.Duration) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.terminalAt != nil && now.Sub(*l.terminalAt) > grace
}
