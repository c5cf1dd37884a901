// Package profile manages the global user profile: the name,
// preferences, and facts that persist across every conversation
// thread. Thread transcripts live in the checkpoint package; this is
// the cross-thread layer a chat consults no matter which thread it is
// on.
package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MaxFacts caps the remembered facts per user. Oldest facts are
// dropped first.
const MaxFacts = 15

// DefaultUserID is used when a request carries no user ID.
const DefaultUserID = "default"

// Preference keys written by extraction and memory directives.
const (
	PrefNoteStyle      = "note_style"
	PrefResponseLength = "response_length"
	PrefTone           = "tone"
	PrefLanguage       = "language"
	PrefExpertiseLevel = "expertise_level"
)

// ErrNotFound is returned when a user has no stored profile.
var ErrNotFound = errors.New("profile: user not found")

// Profile is the global memory for one user.
type Profile struct {
	UserID      string            `json:"user_id"`
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences"`
	Facts       []string          `json:"facts"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Default returns an empty profile for a user.
func Default(userID string) *Profile {
	if userID == "" {
		userID = DefaultUserID
	}
	return &Profile{
		UserID: userID,
		Preferences: map[string]string{
			PrefLanguage: "English",
		},
		Facts: []string{},
	}
}

// Clone returns a copy safe to hand across goroutines.
func (p *Profile) Clone() *Profile {
	prefs := make(map[string]string, len(p.Preferences))
	for k, v := range p.Preferences {
		prefs[k] = v
	}
	facts := make([]string, len(p.Facts))
	copy(facts, p.Facts)
	return &Profile{
		UserID:      p.UserID,
		Name:        p.Name,
		Preferences: prefs,
		Facts:       facts,
		UpdatedAt:   p.UpdatedAt,
	}
}

// AddFact appends a fact if it is not an exact duplicate, dropping the
// oldest facts past MaxFacts. Reports whether anything changed.
func (p *Profile) AddFact(fact string) bool {
	fact = strings.TrimSpace(fact)
	if fact == "" {
		return false
	}
	for _, f := range p.Facts {
		if f == fact {
			return false
		}
	}
	p.Facts = append(p.Facts, fact)
	if len(p.Facts) > MaxFacts {
		p.Facts = p.Facts[len(p.Facts)-MaxFacts:]
	}
	return true
}

// ContextPrompt renders the profile as a system-prompt block. Returns
// an empty string when nothing is known about the user.
func (p *Profile) ContextPrompt() string {
	var parts []string

	if p.Name != "" {
		parts = append(parts, fmt.Sprintf("The user's name is %s.", p.Name))
	}
	if style := p.Preferences[PrefNoteStyle]; style != "" {
		parts = append(parts, fmt.Sprintf("The user prefers %s style explanations.", style))
	}
	if level := p.Preferences[PrefExpertiseLevel]; level != "" {
		parts = append(parts, fmt.Sprintf("The user's expertise level is %s.", level))
	}
	if len(p.Facts) > 0 {
		recent := p.Facts
		if len(recent) > 5 {
			recent = recent[len(recent)-5:]
		}
		parts = append(parts, "Known facts about the user: "+strings.Join(recent, "; "))
	}

	if len(parts) == 0 {
		return ""
	}
	return "USER CONTEXT (from global memory):\n" + strings.Join(parts, "\n")
}

// Backend is a profile store. Implementations: SQLStore (durable) and
// Volatile (in-process fallback).
type Backend interface {
	// Load returns a user's profile, or ErrNotFound.
	Load(userID string) (*Profile, error)

	// Save upserts a profile.
	Save(p *Profile) error

	// Delete removes a profile. The bool reports whether one existed.
	Delete(userID string) (bool, error)
}
