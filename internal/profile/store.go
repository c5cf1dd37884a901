package profile

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// SQLStore persists profiles in SQLite, one JSON document per user.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a profile store using the given database.
func NewSQLStore(db *sql.DB) (*SQLStore, error) {
	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			user_id TEXT PRIMARY KEY,
			updated_at TEXT NOT NULL,
			profile TEXT NOT NULL
		);
	`)
	return err
}

// Load returns a user's profile, or ErrNotFound.
func (s *SQLStore) Load(userID string) (*Profile, error) {
	var doc string
	err := s.db.QueryRow(`
		SELECT profile FROM profiles WHERE user_id = ?
	`, userID).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	var p Profile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("unmarshal profile: %w", err)
	}
	if p.Preferences == nil {
		p.Preferences = map[string]string{}
	}
	if p.Facts == nil {
		p.Facts = []string{}
	}
	return &p, nil
}

// Save upserts a profile, stamping UpdatedAt.
func (s *SQLStore) Save(p *Profile) error {
	p.UpdatedAt = time.Now().UTC()

	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO profiles (user_id, updated_at, profile)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			profile = excluded.profile
	`, p.UserID, p.UpdatedAt.Format(time.RFC3339), string(doc))
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Delete removes a profile.
func (s *SQLStore) Delete(userID string) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM profiles WHERE user_id = ?`, userID)
	if err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

// Volatile is an in-process Backend used as a fallback and in tests.
type Volatile struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewVolatile creates an empty in-memory profile backend.
func NewVolatile() *Volatile {
	return &Volatile{profiles: make(map[string]*Profile)}
}

// Load returns a user's profile, or ErrNotFound.
func (v *Volatile) Load(userID string) (*Profile, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	p, ok := v.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

// Save upserts a profile, stamping UpdatedAt.
func (v *Volatile) Save(p *Profile) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	p.UpdatedAt = time.Now().UTC()
	v.profiles[p.UserID] = p.Clone()
	return nil
}

// Delete removes a profile.
func (v *Volatile) Delete(userID string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	_, existed := v.profiles[userID]
	delete(v.profiles, userID)
	return existed, nil
}
