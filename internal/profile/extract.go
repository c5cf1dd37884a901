package profile

import (
	"strings"
)

// namePatterns mark phrases that introduce a name. The text after the
// match (up to three words, punctuation stripped) becomes the name.
var namePatterns = []string{
	"my name is ", "i'm ", "i am ", "call me ", "this is ",
}

// styleKeywords map trigger words to a canonical note style. They only
// fire alongside a preference verb so "a detailed invoice" does not
// rewrite the user's style.
var styleKeywords = []struct{ keyword, style string }{
	{"detailed", "detailed with examples"},
	{"brief", "brief and concise"},
	{"simple", "simple and easy to understand"},
	{"technical", "technical with code examples"},
	{"beginner", "beginner-friendly"},
	{"step by step", "step-by-step explanations"},
	{"with examples", "with practical examples"},
	{"like a teacher", "classroom-style teaching"},
	{"interview", "interview-focused explanations"},
}

var styleVerbs = []string{"prefer", "want", "like", "explain"}

// levelKeywords map self-descriptions to an expertise level.
var levelKeywords = []struct{ keyword, level string }{
	{"beginner", "beginner"},
	{"intermediate", "intermediate"},
	{"advanced", "advanced"},
	{"expert", "expert"},
	{"new to", "beginner"},
	{"learning", "beginner"},
	{"experienced", "intermediate"},
}

// factPatterns mark sentences where the user shares something about
// themselves. The capture runs from the pattern to the first period or
// comma and must be longer than 10 characters to filter noise.
var factPatterns = []string{
	"i love ", "i like ", "i work ", "i am learning ",
	"i'm learning ", "i'm studying ", "i study ",
	"i'm preparing ", "i am preparing ", "my goal is ",
}

// UpdateFromMessage scans a user message for a name, preferences, and
// facts, and saves whatever it finds. Reports whether the profile
// changed. A message with nothing to learn leaves the store untouched.
func (m *Manager) UpdateFromMessage(userID, message string) bool {
	p := m.Load(userID)
	updated := false
	lower := strings.ToLower(message)

	if name := extractName(message, lower); name != "" {
		p.Name = name
		updated = true
	}

	if style := extractStyle(lower); style != "" {
		p.Preferences[PrefNoteStyle] = style
		updated = true
	}

	if level := extractLevel(lower); level != "" {
		p.Preferences[PrefExpertiseLevel] = level
		updated = true
	}

	if fact := extractFact(message, lower); fact != "" {
		if p.AddFact(fact) {
			updated = true
		}
	}

	if updated {
		m.Save(p)
	}
	return updated
}

// extractName returns a title-cased name from the first matching
// pattern, or "".
func extractName(message, lower string) string {
	for _, pattern := range namePatterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := strings.TrimSpace(message[idx+len(pattern):])
		words := strings.Fields(rest)
		if len(words) > 3 {
			words = words[:3]
		}
		name := strings.TrimRight(strings.Join(words, " "), ".,!?")
		if len(name) > 1 {
			return titleCase(name)
		}
		return ""
	}
	return ""
}

// extractStyle returns a canonical note style when a style keyword
// co-occurs with a preference verb, or "".
func extractStyle(lower string) string {
	hasVerb := false
	for _, verb := range styleVerbs {
		if strings.Contains(lower, verb) {
			hasVerb = true
			break
		}
	}
	if !hasVerb {
		return ""
	}
	for _, sk := range styleKeywords {
		if strings.Contains(lower, sk.keyword) {
			return sk.style
		}
	}
	return ""
}

// extractLevel returns an expertise level, or "".
func extractLevel(lower string) string {
	for _, lk := range levelKeywords {
		if strings.Contains(lower, lk.keyword) {
			return lk.level
		}
	}
	return ""
}

// extractFact returns the first self-description sentence fragment, or
// "". The fragment keeps the original casing and runs to the first
// period or comma.
func extractFact(message, lower string) string {
	for _, pattern := range factPatterns {
		idx := strings.Index(lower, pattern)
		if idx == -1 {
			continue
		}
		rest := message[idx:]
		if cut := strings.IndexAny(rest, ".,"); cut != -1 {
			rest = rest[:cut]
		}
		rest = strings.TrimSpace(rest)
		if len(rest) > 10 {
			return rest
		}
		return ""
	}
	return ""
}

// titleCase capitalizes the first letter of each word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
