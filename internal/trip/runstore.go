package trip

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrRunNotFound is returned when no suspended run exists for a thread.
var ErrRunNotFound = errors.New("trip: run not found")

// Run is a persisted workflow run: the serialized state plus the index
// of the next stage to execute.
type Run struct {
	ThreadID  string          `json:"thread_id"`
	NextStage int             `json:"next_stage"`
	State     json.RawMessage `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunBackend is a persistence backend for workflow runs.
type RunBackend interface {
	Load(threadID string) (*Run, error)
	Save(run *Run) error
	Delete(threadID string) (bool, error)
}

// SQLRuns persists workflow runs in SQLite, one JSON state document per
// thread.
type SQLRuns struct {
	db *sql.DB
}

// NewSQLRuns creates a run store using the given database.
func NewSQLRuns(db *sql.DB) (*SQLRuns, error) {
	s := &SQLRuns{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLRuns) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS workflow_runs (
			thread_id TEXT PRIMARY KEY,
			next_stage INTEGER NOT NULL,
			updated_at TEXT NOT NULL,
			state TEXT NOT NULL
		);
	`)
	return err
}

// Load returns the run for a thread, or ErrRunNotFound.
func (s *SQLRuns) Load(threadID string) (*Run, error) {
	var (
		nextStage int
		updatedAt string
		doc       string
	)
	err := s.db.QueryRow(`
		SELECT next_stage, updated_at, state FROM workflow_runs WHERE thread_id = ?
	`, threadID).Scan(&nextStage, &updatedAt, &doc)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	run := &Run{ThreadID: threadID, NextStage: nextStage, State: json.RawMessage(doc)}
	run.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return run, nil
}

// Save upserts a run, stamping UpdatedAt.
func (s *SQLRuns) Save(run *Run) error {
	run.UpdatedAt = time.Now().UTC()
	_, err := s.db.Exec(`
		INSERT INTO workflow_runs (thread_id, next_stage, updated_at, state)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			next_stage = excluded.next_stage,
			updated_at = excluded.updated_at,
			state = excluded.state
	`, run.ThreadID, run.NextStage, run.UpdatedAt.Format(time.RFC3339), string(run.State))
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Delete removes a run.
func (s *SQLRuns) Delete(threadID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM workflow_runs WHERE thread_id = ?`, threadID)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// VolatileRuns is an in-process RunBackend used as a fallback and in
// tests.
type VolatileRuns struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

// NewVolatileRuns creates an empty in-memory run backend.
func NewVolatileRuns() *VolatileRuns {
	return &VolatileRuns{runs: make(map[string]*Run)}
}

func (v *VolatileRuns) Load(threadID string) (*Run, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	run, ok := v.runs[threadID]
	if !ok {
		return nil, ErrRunNotFound
	}
	clone := *run
	clone.State = append(json.RawMessage(nil), run.State...)
	return &clone, nil
}

func (v *VolatileRuns) Save(run *Run) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	clone := *run
	clone.UpdatedAt = time.Now().UTC()
	clone.State = append(json.RawMessage(nil), run.State...)
	v.runs[run.ThreadID] = &clone
	return nil
}

func (v *VolatileRuns) Delete(threadID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.runs[threadID]
	delete(v.runs, threadID)
	return ok, nil
}

// RunStore fronts a durable RunBackend with a volatile fallback, so a
// broken database degrades suspend/resume to process lifetime instead of
// failing requests.
type RunStore struct {
	backend  RunBackend
	fallback *VolatileRuns
	logger   *slog.Logger
}

// NewRunStore creates a run store. A nil backend is purely volatile.
func NewRunStore(backend RunBackend, logger *slog.Logger) *RunStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RunStore{backend: backend, fallback: NewVolatileRuns(), logger: logger}
}

// Load returns the run for a thread, checking the durable backend first.
func (s *RunStore) Load(threadID string) (*Run, error) {
	if s.backend != nil {
		run, err := s.backend.Load(threadID)
		if err == nil {
			return run, nil
		}
		if !errors.Is(err, ErrRunNotFound) {
			s.logger.Warn("run backend load failed, trying volatile", "thread", threadID, "error", err)
		}
	}
	return s.fallback.Load(threadID)
}

// Save writes to both stores; a backend failure degrades to volatile.
func (s *RunStore) Save(run *Run) error {
	if err := s.fallback.Save(run); err != nil {
		return err
	}
	if s.backend != nil {
		if err := s.backend.Save(run); err != nil {
			s.logger.Warn("run backend save failed, volatile only", "thread", run.ThreadID, "error", err)
		}
	}
	return nil
}

// Delete removes a run from both stores.
func (s *RunStore) Delete(threadID string) bool {
	existed, _ := s.fallback.Delete(threadID)
	if s.backend != nil {
		backendExisted, err := s.backend.Delete(threadID)
		if err != nil {
			s.logger.Warn("run backend delete failed", "thread", threadID, "error", err)
		}
		existed = existed || backendExisted
	}
	return existed
}
