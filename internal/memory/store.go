// Package memory provides short-lived session memory for the agent.
//
// Each web-search session keeps its own history keyed by session ID,
// plus one shared bucket ([SharedKey]) that accumulates answers across
// sessions so a new session can see what earlier ones learned. This is
// working memory, not durable state; the checkpoint package owns
// persistence.
package memory

import (
	"sync"
	"time"
)

// SharedKey is the cross-session bucket. Completed answers are written
// here as well as to their own session.
const SharedKey = "shared"

// DefaultMaxTurns caps a session's history when the caller passes 0.
const DefaultMaxTurns = 12

// Message is a single history entry.
type Message struct {
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session holds the state of one agent session.
type Session struct {
	ID        string    `json:"id"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store manages session memory. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	maxTurns int
}

// NewStore creates a session store. maxTurns caps each session to the
// most recent N turns (2N messages); 0 uses DefaultMaxTurns.
func NewStore(maxTurns int) *Store {
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	return &Store{
		sessions: make(map[string]*Session),
		maxTurns: maxTurns,
	}
}

// AddTurn appends a completed question/answer pair to a session.
func (s *Store) AddTurn(sessionID, query, answer string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{
			ID:        sessionID,
			CreatedAt: time.Now(),
		}
		s.sessions[sessionID] = sess
	}

	now := time.Now()
	sess.Messages = append(sess.Messages,
		Message{Role: "user", Content: query, Timestamp: now},
		Message{Role: "assistant", Content: answer, Timestamp: now},
	)
	sess.UpdatedAt = now

	// Trim oldest turns past the cap. Messages always arrive in pairs,
	// so the cap is 2*maxTurns entries.
	if max := s.maxTurns * 2; len(sess.Messages) > max {
		sess.Messages = sess.Messages[len(sess.Messages)-max:]
	}
}

// Messages returns a copy of a session's history. A missing session
// returns an empty slice.
func (s *Store) Messages(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return []Message{}
	}

	msgs := make([]Message, len(sess.Messages))
	copy(msgs, sess.Messages)
	return msgs
}

// Clear removes a session. Clearing a missing session is a no-op.
func (s *Store) Clear(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
}

// Sessions returns the IDs of all live sessions.
func (s *Store) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Stats returns memory statistics for diagnostics.
func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totalMessages := 0
	for _, sess := range s.sessions {
		totalMessages += len(sess.Messages)
	}

	return map[string]any{
		"sessions":  len(s.sessions),
		"messages":  totalMessages,
		"max_turns": s.maxTurns,
	}
}
