// Package store implements spec.md §4.4 (C4 State Store): a write-behind
// cache over a durable Repository, subscribed to the event bus at HIGH
// priority so the store persists state before any observer sees the same
// event (spec.md §4.3's priority barrier). The Store/Repository split and
// the coalescing flush loop are grounded on
// dshills-langgraph-go/graph/store/store.go's Store[S] interface and
// memory.go's in-memory implementation, fixed here to S = core.ExecutionState
// since every execution in this domain shares one state shape (unlike the
// teacher's per-workflow generic state).
package store

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/dipeo/dipeo-core/core"
	"github.com/dipeo/dipeo-core/core/event"
)

// ErrNotFound is returned when a requested execution_id does not exist in
// either the cache or the repository.
var ErrNotFound = errors.New("execution not found")

// ListFilter scopes ListExecutions (spec.md §4.4, "list_executions(diagram_id?, status?, limit, offset)").
type ListFilter struct {
	DiagramID string
	Status    core.ExecutionStatus
	Limit     int
	Offset    int
}

// Repository is the durable backing a Store writes through to. Concrete
// implementations live in sqlite.go (modernc.org/sqlite) and mysql.go
// (go-sql-driver/mysql); MemoryRepository in memory.go backs tests and
// single-process deployments that don't need cross-restart durability.
type Repository interface {
	Upsert(ctx context.Context, state *core.ExecutionState) error
	Get(ctx context.Context, executionID string) (*core.ExecutionState, error)
	List(ctx context.Context, filter ListFilter) ([]*core.ExecutionState, error)
}

// Store is the cache+repository composite described in spec.md §4.4.
type Store struct {
	repo Repository
	bus  *event.Bus

	mu    sync.RWMutex
	cache map[string]*core.ExecutionState
	dirty map[string]bool

	flushInterval time.Duration
	stopFlush     chan struct{}
	flushDone     chan struct{}
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithFlushInterval overrides the periodic dirty-entry flush cadence.
// Default 2s.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// New constructs a Store backed by repo and wires it to bus at HIGH
// priority for the six state-mutating event types (spec.md §4.4).
func New(repo Repository, bus *event.Bus, opts ...Option) *Store {
	s := &Store{
		repo:          repo,
		bus:           bus,
		cache:         make(map[string]*core.ExecutionState),
		dirty:         make(map[string]bool),
		flushInterval: 2 * time.Second,
		stopFlush:     make(chan struct{}),
		flushDone:     make(chan struct{}),
	}
	if bus != nil {
		bus.Subscribe([]event.EventType{
			event.ExecutionStarted, event.NodeStarted, event.NodeCompleted,
			event.NodeError, event.ExecutionCompleted, event.ExecutionError,
		}, s.onEvent, event.PriorityHigh, nil)
	}
	go s.flushLoop()
	return s
}

// Close stops the background flusher and performs a final flush.
func (s *Store) Close() {
	close(s.stopFlush)
	<-s.flushDone
}

// InitializeState inserts a pending ExecutionState record (spec.md §4.4).
func (s *Store) InitializeState(ctx context.Context, executionID, diagramID string, variables, metadata map[string]any) *core.ExecutionState {
	state := core.NewExecutionState(executionID, diagramID, variables, metadata)
	s.mu.Lock()
	s.cache[executionID] = state
	s.dirty[executionID] = true
	s.mu.Unlock()
	return state
}

// GetState returns the cached state, falling back to the repository.
func (s *Store) GetState(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	if state, ok := s.GetStateFromCache(executionID); ok {
		return state, nil
	}
	if s.repo == nil {
		return nil, ErrNotFound
	}
	state, err := s.repo.Get(ctx, executionID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.cache[executionID] = state
	s.mu.Unlock()
	return state, nil
}

// GetStateFromCache returns only the in-memory hot copy, used by resolvers
// that need fresh in-flight state without a repository round trip.
func (s *Store) GetStateFromCache(executionID string) (*core.ExecutionState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.cache[executionID]
	return state, ok
}

// ListExecutions delegates to the repository; the cache is not consulted
// since listing is a cross-execution query the repository is authoritative
// for once entries have flushed.
func (s *Store) ListExecutions(ctx context.Context, filter ListFilter) ([]*core.ExecutionState, error) {
	if s.repo == nil {
		return nil, nil
	}
	return s.repo.List(ctx, filter)
}

func (s *Store) onEvent(ev event.Event) {
	execID := ev.Scope.ExecutionID
	if execID == "" {
		return
	}
	s.mu.Lock()
	state, ok := s.cache[execID]
	if !ok {
		s.mu.Unlock()
		return
	}
	s.applyLocked(state, ev)
	s.dirty[execID] = true
	terminal := ev.Type == event.ExecutionCompleted || ev.Type == event.ExecutionError
	s.mu.Unlock()

	if terminal {
		s.flushOne(context.Background(), execID)
	}
}

// applyLocked mutates state per ev while s.mu is held. It mirrors the
// fields the engine already owns on ExecutionState; the store's copy is a
// read path only, never consulted by the engine itself.
func (s *Store) applyLocked(state *core.ExecutionState, ev event.Event) {
	switch ev.Type {
	case event.ExecutionStarted:
		state.Status = core.ExecRunning
	case event.NodeStarted:
		if p, ok := ev.Payload.(event.NodeStartedPayload); ok {
			ns := state.NodeStates[p.NodeID]
			ns.Status = core.StatusRunning
			state.NodeStates[p.NodeID] = ns
		}
	case event.NodeCompleted:
		if p, ok := ev.Payload.(event.NodeCompletedPayload); ok {
			ns := state.NodeStates[p.NodeID]
			ns.Status = core.StatusCompleted
			ns.Output = &p.Output
			state.NodeStates[p.NodeID] = ns
			state.NodeOutputs[p.NodeID] = p.Output
		}
	case event.NodeError:
		if p, ok := ev.Payload.(event.NodeErrorPayload); ok {
			ns := state.NodeStates[p.NodeID]
			ns.Status = core.StatusFailed
			if p.Err != nil {
				ns.Error = p.Err.Error()
			}
			state.NodeStates[p.NodeID] = ns
		}
	case event.ExecutionCompleted:
		if p, ok := ev.Payload.(event.ExecutionCompletedPayload); ok {
			state.Status = p.Status
			state.LLMUsage = p.LLMUsage
		}
	case event.ExecutionError:
		if p, ok := ev.Payload.(event.ExecutionErrorPayload); ok {
			state.Status = core.ExecFailed
			state.Error = p.Message
		}
	}
}

func (s *Store) flushLoop() {
	defer close(s.flushDone)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.flushDirty(context.Background())
		case <-s.stopFlush:
			s.flushDirty(context.Background())
			return
		}
	}
}

func (s *Store) flushDirty(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.flushOne(ctx, id)
	}
}

func (s *Store) flushOne(ctx context.Context, executionID string) {
	if s.repo == nil {
		s.mu.Lock()
		delete(s.dirty, executionID)
		s.mu.Unlock()
		return
	}
	s.mu.RLock()
	state, ok := s.cache[executionID]
	s.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.repo.Upsert(ctx, state); err != nil {
		return
	}
	s.mu.Lock()
	delete(s.dirty, executionID)
	s.mu.Unlock()
}

// sortByStartedAt orders executions newest-first, the order List callers
// expect before applying limit/offset.
func sortByStartedAt(states []*core.ExecutionState) {
	sort.Slice(states, func(i, j int) bool {
		return states[i].StartedAt.After(states[j].StartedAt)
	})
}
