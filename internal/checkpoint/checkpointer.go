package checkpoint

import (
	"errors"
	"log/slog"
)

// Checkpointer is the thread-state facade the rest of Sherpa uses.
// It wraps a durable Backend and falls back to a Volatile store when
// the backend errors: a failing disk degrades persistence to process
// lifetime instead of failing chat requests.
type Checkpointer struct {
	backend  Backend
	fallback *Volatile
	maxTurns int
	logger   *slog.Logger
}

// NewCheckpointer creates a checkpointer over a backend. maxTurns caps
// each thread's transcript on save; 0 uses MaxTurns. A nil backend
// runs purely volatile.
func NewCheckpointer(backend Backend, maxTurns int, logger *slog.Logger) *Checkpointer {
	if maxTurns <= 0 {
		maxTurns = MaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checkpointer{
		backend:  backend,
		fallback: NewVolatile(),
		maxTurns: maxTurns,
		logger:   logger,
	}
}

// Load returns the state for a thread and whether it was found.
// Backend failures resolve against the volatile fallback, then report
// not-found rather than erroring.
func (c *Checkpointer) Load(threadID string) (*State, bool) {
	if c.backend != nil {
		state, err := c.backend.Load(threadID)
		if err == nil {
			return state, true
		}
		if !errors.Is(err, ErrNotFound) {
			c.logger.Warn("checkpoint load failed, trying volatile fallback",
				"thread_id", threadID, "error", err)
			if state, ferr := c.fallback.Load(threadID); ferr == nil {
				return state, true
			}
			return nil, false
		}
	}

	state, err := c.fallback.Load(threadID)
	if err != nil {
		return nil, false
	}
	return state, true
}

// Save trims and upserts the state for a thread. It reports whether
// the write reached the durable backend; a false return means the
// state lives only in the volatile fallback.
func (c *Checkpointer) Save(threadID string, state *State) bool {
	state.Trim(c.maxTurns)

	if c.backend == nil {
		_ = c.fallback.Save(threadID, state)
		return false
	}

	if err := c.backend.Save(threadID, state); err != nil {
		c.logger.Warn("checkpoint save failed, keeping volatile copy",
			"thread_id", threadID, "error", err)
		_ = c.fallback.Save(threadID, state)
		return false
	}
	return true
}

// Delete removes a thread from both stores. It reports whether the
// thread existed anywhere.
func (c *Checkpointer) Delete(threadID string) bool {
	volExisted, _ := c.fallback.Delete(threadID)

	if c.backend == nil {
		return volExisted
	}

	existed, err := c.backend.Delete(threadID)
	if err != nil {
		c.logger.Warn("checkpoint delete failed",
			"thread_id", threadID, "error", err)
		return volExisted
	}
	return existed || volExisted
}

// Threads lists checkpointed thread IDs. Backend failures return the
// volatile view.
func (c *Checkpointer) Threads() []string {
	if c.backend != nil {
		ids, err := c.backend.Threads()
		if err == nil {
			return ids
		}
		c.logger.Warn("checkpoint list failed, using volatile view", "error", err)
	}
	ids, _ := c.fallback.Threads()
	return ids
}

// MaxTurns returns the configured per-thread turn cap.
func (c *Checkpointer) MaxTurns() int {
	return c.maxTurns
}
