package checkpoint

import (
	"sort"
	"sync"
	"time"
)

// Volatile is an in-process Backend. It backs the Checkpointer when
// the durable store is unavailable, and serves tests.
type Volatile struct {
	mu      sync.RWMutex
	states  map[string]*State
	updated map[string]time.Time
}

// NewVolatile creates an empty in-memory backend.
func NewVolatile() *Volatile {
	return &Volatile{
		states:  make(map[string]*State),
		updated: make(map[string]time.Time),
	}
}

// Load returns the state for a thread, or ErrNotFound.
func (v *Volatile) Load(threadID string) (*State, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	state, ok := v.states[threadID]
	if !ok {
		return nil, ErrNotFound
	}
	return state.Clone(), nil
}

// Save upserts the state for a thread.
func (v *Volatile) Save(threadID string, state *State) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.states[threadID] = state.Clone()
	v.updated[threadID] = time.Now()
	return nil
}

// Delete removes a thread.
func (v *Volatile) Delete(threadID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, existed := v.states[threadID]
	delete(v.states, threadID)
	delete(v.updated, threadID)
	return existed, nil
}

// Threads lists thread IDs, most recently updated first.
func (v *Volatile) Threads() ([]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	ids := make([]string, 0, len(v.states))
	for id := range v.states {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return v.updated[ids[i]].After(v.updated[ids[j]])
	})
	return ids, nil
}
