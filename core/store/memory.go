package store

import (
	"context"
	"sync"

	"github.com/dipeo/dipeo-core/core"
)

// MemoryRepository is an in-process Repository, grounded on
// dshills-langgraph-go/graph/store/memory.go's map-backed Store[S]
// implementation. It has no cross-restart durability; use sqlite.go or
// mysql.go for that.
type MemoryRepository struct {
	mu    sync.RWMutex
	byID  map[string]*core.ExecutionState
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*core.ExecutionState)}
}

// Upsert stores a deep-enough copy of state (the top-level struct; maps are
// shared, matching the teacher's in-memory store semantics of "last writer
// wins" for an in-process backend).
func (r *MemoryRepository) Upsert(ctx context.Context, state *core.ExecutionState) error {
	cp := *state
	r.mu.Lock()
	r.byID[state.ID] = &cp
	r.mu.Unlock()
	return nil
}

// Get returns the stored state for executionID, or ErrNotFound.
func (r *MemoryRepository) Get(ctx context.Context, executionID string) (*core.ExecutionState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.byID[executionID]
	if !ok {
		return nil, ErrNotFound
	}
	return state, nil
}

// List applies filter.DiagramID/Status then limit/offset over states
// ordered newest-first by StartedAt.
func (r *MemoryRepository) List(ctx context.Context, filter ListFilter) ([]*core.ExecutionState, error) {
	r.mu.RLock()
	matched := make([]*core.ExecutionState, 0, len(r.byID))
	for _, state := range r.byID {
		if filter.DiagramID != "" && state.DiagramID != filter.DiagramID {
			continue
		}
		if filter.Status != "" && state.Status != filter.Status {
			continue
		}
		matched = append(matched, state)
	}
	r.mu.RUnlock()

	sortByStartedAt(matched)

	offset := filter.Offset
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]

	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}
