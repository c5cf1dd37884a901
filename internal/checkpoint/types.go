// Package checkpoint persists per-thread conversation state.
//
// A thread's State is a bounded message transcript plus free-form
// metadata. The SQLite backend stores each thread as one gzip'd JSON
// blob, upserted on every save (last write wins). The [Checkpointer]
// facade degrades to an in-process volatile store when the backend
// fails, so a broken disk costs durability, never availability.
package checkpoint

import (
	"errors"
	"time"
)

// MaxTurns is the default cap on checkpointed turns per thread.
// A turn is a user message plus the assistant reply, so the transcript
// holds at most 2*MaxTurns messages.
const MaxTurns = 12

// ErrNotFound is returned when a thread has no checkpointed state.
var ErrNotFound = errors.New("checkpoint: thread not found")

// Message is one transcript entry.
type Message struct {
	Role      string    `json:"role"` // user, assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the checkpointed conversation state for one thread.
type State struct {
	Messages []Message      `json:"messages"`
	Metadata map[string]any `json:"metadata"`
}

// NewState returns an empty state with non-nil fields, matching the
// shape clients get back for threads that were never saved.
func NewState() *State {
	return &State{
		Messages: []Message{},
		Metadata: map[string]any{},
	}
}

// Trim drops the oldest messages beyond maxTurns turns. Messages
// arrive in user/assistant pairs, so the retained window is the last
// 2*maxTurns entries.
func (s *State) Trim(maxTurns int) {
	if maxTurns <= 0 {
		maxTurns = MaxTurns
	}
	if max := maxTurns * 2; len(s.Messages) > max {
		s.Messages = s.Messages[len(s.Messages)-max:]
	}
}

// Clone returns a deep-enough copy for handing across goroutines.
// Metadata values are shared; callers treat them as read-only.
func (s *State) Clone() *State {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	meta := make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		meta[k] = v
	}
	return &State{Messages: msgs, Metadata: meta}
}

// Backend is a thread-state store. Implementations: SQLStore
// (durable) and Volatile (in-process fallback).
type Backend interface {
	// Load returns the state for a thread, or ErrNotFound.
	Load(threadID string) (*State, error)

	// Save upserts the state for a thread.
	Save(threadID string, state *State) error

	// Delete removes a thread. Deleting a missing thread is not an
	// error; the returned bool reports whether anything existed.
	Delete(threadID string) (bool, error)

	// Threads lists checkpointed thread IDs, most recently updated
	// first.
	Threads() ([]string, error)
}
