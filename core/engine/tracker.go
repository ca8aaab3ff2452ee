// Package engine implements spec.md §4.8 (C8 Execution Engine): the run
// loop that owns one execution end to end. The StateTracker below
// implements §4.2 (C2 State Tracker) — an engine-private bookkeeping layer
// distinct from the durable core/store.Store, which a bus subscriber
// populates from the same events this package publishes.
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/dipeo/dipeo-core/core"
)

// StateTracker is the engine's private, single-writer view of node state
// for one execution. Its at-most-once dispatch guarantee is grounded on
// dshills-langgraph-go's idempotency-key pattern (graph/checkpoint.go's
// computeIdempotencyKey over (run_id, node_id, attempt)); here the key is
// over (execution_id, node_id, exec_count) per spec.md's invariant "a node
// is dispatched at most once per (execution_id, exec_counts[n]) pair".
type StateTracker struct {
	mu         sync.Mutex
	execID     string
	states     map[core.NodeID]core.NodeState
	execCounts map[core.NodeID]int
	started    map[string]bool
}

// NewStateTracker constructs an empty tracker for one execution.
func NewStateTracker(execID string) *StateTracker {
	return &StateTracker{
		execID:     execID,
		states:     make(map[core.NodeID]core.NodeState),
		execCounts: make(map[core.NodeID]int),
		started:    make(map[string]bool),
	}
}

// InitializeNode records n as pending if it has no state yet.
func (t *StateTracker) InitializeNode(n core.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.states[n]; !ok {
		t.states[n] = core.NodeState{Status: core.StatusPending}
	}
}

// dispatchKey computes the idempotency key guarding at-most-once dispatch.
func (t *StateTracker) dispatchKey(n core.NodeID, execCount int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", t.execID, n, execCount)
	return hex.EncodeToString(h.Sum(nil))
}

// MarkStarted transitions n to running and returns startedAt, or an error
// if (n, current exec count) has already been started once.
func (t *StateTracker) MarkStarted(n core.NodeID) (time.Time, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	count := t.execCounts[n]
	key := t.dispatchKey(n, count)
	if t.started[key] {
		return time.Time{}, fmt.Errorf("node %s already dispatched for exec_count=%d", n, count)
	}
	t.started[key] = true

	now := time.Now()
	ns := t.states[n]
	ns.Status = core.StatusRunning
	ns.StartedAt = &now
	ns.EndedAt = nil
	ns.Error = ""
	t.states[n] = ns
	return now, nil
}

// MarkCompleted records n's successful completion with output env.
func (t *StateTracker) MarkCompleted(n core.NodeID, env core.Envelope) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	ns := t.states[n]
	ns.Status = core.StatusCompleted
	ns.EndedAt = &now
	ns.Output = &env
	t.states[n] = ns
	t.execCounts[n]++
}

// MarkSkipped records n as never having run because the branch of a
// condition node that would have reached it was not the one taken
// (spec.md §8 scenario 2: the untaken branch never starts). Skipped is
// terminal, so a diagram that correctly prunes a branch still reaches
// IsExecutionComplete instead of waiting forever on a join no live edge
// can ever satisfy.
func (t *StateTracker) MarkSkipped(n core.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	ns := t.states[n]
	ns.Status = core.StatusSkipped
	ns.EndedAt = &now
	t.states[n] = ns
}

// MarkFailed records n's failure.
func (t *StateTracker) MarkFailed(n core.NodeID, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	ns := t.states[n]
	ns.Status = core.StatusFailed
	ns.EndedAt = &now
	if err != nil {
		ns.Error = err.Error()
	}
	t.states[n] = ns
	t.execCounts[n]++
}

// GetNodeState returns n's current state.
func (t *StateTracker) GetNodeState(n core.NodeID) core.NodeState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[n]
}

// GetExecutionCount returns how many times n has completed or failed.
func (t *StateTracker) GetExecutionCount(n core.NodeID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.execCounts[n]
}

// IncrementExecutionCount bumps n's count without a status transition, used
// when the scheduler re-enables a loop node for another iteration.
func (t *StateTracker) IncrementExecutionCount(n core.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.execCounts[n]++
}

// CompletedNodes returns the set of nodes currently in StatusCompleted.
func (t *StateTracker) CompletedNodes() map[core.NodeID]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[core.NodeID]bool)
	for id, ns := range t.states {
		if ns.Status == core.StatusCompleted {
			out[id] = true
		}
	}
	return out
}

// IsExecutionComplete reports whether no node is running and every tracked
// node has reached a terminal status.
func (t *StateTracker) IsExecutionComplete(allNodes []core.NodeID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, id := range allNodes {
		ns, ok := t.states[id]
		if !ok || !ns.Status.Terminal() {
			return false
		}
	}
	return true
}

// Snapshot copies the tracker's node states into an ExecutionState's
// NodeStates/NodeOutputs/ExecCounts maps for publication or persistence.
func (t *StateTracker) Snapshot(into *core.ExecutionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ns := range t.states {
		into.NodeStates[id] = ns
		if ns.Output != nil {
			into.NodeOutputs[id] = *ns.Output
		}
	}
	for id, c := range t.execCounts {
		into.ExecCounts[id] = c
	}
}
