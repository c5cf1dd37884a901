package profile

import (
	"errors"
	"log/slog"
	"strings"
)

// Manager is the profile facade. Like the checkpoint layer, it wraps a
// durable backend with a volatile fallback so profile reads and writes
// never fail a chat: a broken backend costs persistence, not requests.
type Manager struct {
	backend  Backend
	fallback *Volatile
	logger   *slog.Logger
}

// NewManager creates a profile manager. A nil backend runs purely
// volatile.
func NewManager(backend Backend, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backend:  backend,
		fallback: NewVolatile(),
		logger:   logger,
	}
}

// Load returns a user's profile. Unknown users and backend failures
// both yield the default empty profile.
func (m *Manager) Load(userID string) *Profile {
	if userID == "" {
		userID = DefaultUserID
	}

	if m.backend != nil {
		p, err := m.backend.Load(userID)
		if err == nil {
			return p
		}
		if !errors.Is(err, ErrNotFound) {
			m.logger.Warn("profile load failed, trying volatile fallback",
				"user_id", userID, "error", err)
			if p, ferr := m.fallback.Load(userID); ferr == nil {
				return p
			}
			return Default(userID)
		}
	}

	if p, err := m.fallback.Load(userID); err == nil {
		return p
	}
	return Default(userID)
}

// Save upserts a profile. Reports whether the write reached the
// durable backend.
func (m *Manager) Save(p *Profile) bool {
	if p.UserID == "" {
		p.UserID = DefaultUserID
	}

	if m.backend == nil {
		_ = m.fallback.Save(p)
		return false
	}
	if err := m.backend.Save(p); err != nil {
		m.logger.Warn("profile save failed, keeping volatile copy",
			"user_id", p.UserID, "error", err)
		_ = m.fallback.Save(p)
		return false
	}
	return true
}

// Clear removes a user's profile from both stores. Reports whether a
// profile existed anywhere.
func (m *Manager) Clear(userID string) bool {
	if userID == "" {
		userID = DefaultUserID
	}

	volExisted, _ := m.fallback.Delete(userID)
	if m.backend == nil {
		return volExisted
	}

	existed, err := m.backend.Delete(userID)
	if err != nil {
		m.logger.Warn("profile delete failed", "user_id", userID, "error", err)
		return volExisted
	}
	return existed || volExisted
}

// ContextPrompt renders a user's profile for system-prompt injection.
func (m *Manager) ContextPrompt(userID string) string {
	return m.Load(userID).ContextPrompt()
}

// UpdateName sets a user's name.
func (m *Manager) UpdateName(userID, name string) bool {
	p := m.Load(userID)
	p.Name = name
	return m.Save(p)
}

// UpdatePreference sets one preference key.
func (m *Manager) UpdatePreference(userID, key, value string) bool {
	p := m.Load(userID)
	p.Preferences[key] = value
	return m.Save(p)
}

// AddFact appends a fact with dedup and cap.
func (m *Manager) AddFact(userID, fact string) bool {
	p := m.Load(userID)
	if !p.AddFact(fact) {
		return false
	}
	return m.Save(p)
}

// Merge folds a partial profile update into a user's profile: name
// replaces when non-empty, preferences merge key-wise, facts append
// with dedup. Used by the memory HTTP endpoint. Returns the merged
// profile.
func (m *Manager) Merge(userID, name string, prefs map[string]string, facts []string) *Profile {
	p := m.Load(userID)

	if name != "" {
		p.Name = name
	}
	for k, v := range prefs {
		p.Preferences[k] = v
	}
	for _, f := range facts {
		p.AddFact(f)
	}

	m.Save(p)
	return p
}

// Memory directive markers. The chat system prompt instructs the model
// to end its reply with this block when the user shares something
// worth remembering.
const (
	directiveStart = "[MEMORY_UPDATE]"
	directiveEnd   = "[/MEMORY_UPDATE]"
)

// ApplyDirective parses a [MEMORY_UPDATE] block out of a model reply
// and applies it to the user's profile. Reports whether anything was
// saved. Malformed blocks are ignored.
func (m *Manager) ApplyDirective(reply, userID string) bool {
	start := strings.Index(reply, directiveStart)
	end := strings.Index(reply, directiveEnd)
	if start == -1 || end == -1 || end < start {
		return false
	}

	block := strings.TrimSpace(reply[start+len(directiveStart) : end])

	var updateType, key, value string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "type:"):
			updateType = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "type:")))
		case strings.HasPrefix(line, "key:"):
			key = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "key:")))
		case strings.HasPrefix(line, "value:"):
			value = strings.TrimSpace(strings.TrimPrefix(line, "value:"))
		}
	}

	if updateType == "" || value == "" {
		return false
	}

	switch updateType {
	case "name":
		m.UpdateName(userID, value)
		m.logger.Debug("memory directive saved name", "user_id", userID)
		return true
	case "preference":
		if key == "" {
			return false
		}
		m.UpdatePreference(userID, key, value)
		m.logger.Debug("memory directive saved preference", "user_id", userID, "key", key)
		return true
	case "fact":
		m.AddFact(userID, value)
		m.logger.Debug("memory directive saved fact", "user_id", userID)
		return true
	}
	return false
}

// StripDirective removes the [MEMORY_UPDATE] block and everything
// after it from a reply, so users never see the bookkeeping.
func StripDirective(reply string) string {
	if idx := strings.Index(reply, directiveStart); idx != -1 {
		return strings.TrimSpace(reply[:idx])
	}
	return reply
}
