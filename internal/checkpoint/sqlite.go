package checkpoint

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// SQLStore persists thread state in SQLite, one gzip'd JSON blob per
// thread.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a checkpoint store using the given database.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			thread_id TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL,
			state_gz BLOB NOT NULL,
			byte_size INTEGER NOT NULL,
			message_count INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_threads_updated
			ON threads(updated_at DESC);
	`)
	return err
}

// Load returns the state for a thread, or ErrNotFound.
func (s *SQLStore) Load(threadID string) (*State, error) {
	var stateGz []byte
	err := s.db.QueryRow(`
		SELECT state_gz FROM threads WHERE thread_id = ?
	`, threadID).Scan(&stateGz)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	gr, err := gzip.NewReader(bytes.NewReader(stateGz))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer gr.Close()

	stateJSON, err := io.ReadAll(gr)
	if err != nil {
		return nil, fmt.Errorf("decompress: %w", err)
	}

	var state State
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, fmt.Errorf("unmarshal state: %w", err)
	}
	if state.Messages == nil {
		state.Messages = []Message{}
	}
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}

	return &state, nil
}

// Save upserts the state for a thread. Last write wins.
func (s *SQLStore) Save(threadID string, state *State) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(stateJSON); err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	compressed := buf.Bytes()
	now := time.Now().UTC().Format(time.RFC3339)

	_, err = s.db.Exec(`
		INSERT INTO threads (thread_id, updated_at, state_gz, byte_size, message_count)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			state_gz = excluded.state_gz,
			byte_size = excluded.byte_size,
			message_count = excluded.message_count
	`, threadID, now, compressed, len(compressed), len(state.Messages))
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}

	return nil
}

// Delete removes a thread.
func (s *SQLStore) Delete(threadID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM threads WHERE thread_id = ?`, threadID)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}

	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Threads lists checkpointed thread IDs, most recently updated first.
func (s *SQLStore) Threads() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT thread_id FROM threads ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
