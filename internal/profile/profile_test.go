package profile

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

func setupSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store, err := NewSQLStore(db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestSQLStoreRoundTrip(t *testing.T) {
	store := setupSQLStore(t)

	p := Default("ankur")
	p.Name = "Ankur"
	p.Preferences[PrefNoteStyle] = "detailed with examples"
	p.AddFact("i love python programming")

	if err := store.Save(p); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.Load("ankur")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Name != "Ankur" {
		t.Errorf("Name = %q", got.Name)
	}
	if got.Preferences[PrefNoteStyle] != "detailed with examples" {
		t.Errorf("note_style = %q", got.Preferences[PrefNoteStyle])
	}
	if len(got.Facts) != 1 {
		t.Errorf("Facts = %v", got.Facts)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped")
	}
}

func TestSQLStoreMissingUser(t *testing.T) {
	store := setupSQLStore(t)
	if _, err := store.Load("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLStoreDelete(t *testing.T) {
	store := setupSQLStore(t)

	if err := store.Save(Default("u")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	existed, err := store.Delete("u")
	if err != nil || !existed {
		t.Errorf("Delete = %v, %v", existed, err)
	}
	existed, err = store.Delete("u")
	if err != nil || existed {
		t.Errorf("second Delete = %v, %v", existed, err)
	}
}

func TestAddFactDedupAndCap(t *testing.T) {
	p := Default("u")

	if !p.AddFact("i love python programming") {
		t.Error("first AddFact = false")
	}
	if p.AddFact("i love python programming") {
		t.Error("duplicate AddFact = true")
	}

	for i := 0; i < MaxFacts+5; i++ {
		p.AddFact(fmt.Sprintf("i am learning topic number %d", i))
	}
	if len(p.Facts) != MaxFacts {
		t.Errorf("len(Facts) = %d, want %d", len(p.Facts), MaxFacts)
	}
	// Oldest dropped.
	if p.Facts[0] == "i love python programming" {
		t.Error("oldest fact not dropped at cap")
	}
}

func TestContextPrompt(t *testing.T) {
	p := Default("u")
	if p.ContextPrompt() != "" {
		t.Errorf("empty profile prompt = %q", p.ContextPrompt())
	}

	p.Name = "Ankur"
	p.Preferences[PrefNoteStyle] = "brief and concise"
	p.Preferences[PrefExpertiseLevel] = "beginner"
	for i := 0; i < 8; i++ {
		p.AddFact(fmt.Sprintf("i am learning topic number %d", i))
	}

	prompt := p.ContextPrompt()
	if !strings.HasPrefix(prompt, "USER CONTEXT (from global memory):") {
		t.Errorf("prompt header missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "The user's name is Ankur.") {
		t.Errorf("name missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "brief and concise") {
		t.Errorf("style missing:\n%s", prompt)
	}
	if !strings.Contains(prompt, "beginner") {
		t.Errorf("level missing:\n%s", prompt)
	}
	// Only the last five facts render.
	if strings.Contains(prompt, "topic number 2") {
		t.Errorf("old fact rendered:\n%s", prompt)
	}
	if !strings.Contains(prompt, "topic number 7") {
		t.Errorf("recent fact missing:\n%s", prompt)
	}
}

func TestUpdateFromMessage(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	tests := []struct {
		message string
		check   func(t *testing.T, p *Profile)
		updated bool
	}{
		{
			message: "My name is Ankur and I prefer detailed explanations",
			updated: true,
			check: func(t *testing.T, p *Profile) {
				if p.Name != "Ankur And I" {
					t.Errorf("Name = %q", p.Name)
				}
				if p.Preferences[PrefNoteStyle] != "detailed with examples" {
					t.Errorf("note_style = %q", p.Preferences[PrefNoteStyle])
				}
			},
		},
		{
			message: "i'm new to golang and i'm learning concurrency patterns",
			updated: true,
			check: func(t *testing.T, p *Profile) {
				if p.Preferences[PrefExpertiseLevel] != "beginner" {
					t.Errorf("level = %q", p.Preferences[PrefExpertiseLevel])
				}
				found := false
				for _, f := range p.Facts {
					if strings.HasPrefix(f, "i'm learning") {
						found = true
					}
				}
				if !found {
					t.Errorf("fact not captured: %v", p.Facts)
				}
			},
		},
		{
			message: "what is a goroutine?",
			updated: false,
			check:   func(t *testing.T, p *Profile) {},
		},
	}

	for i, tt := range tests {
		userID := fmt.Sprintf("user%d", i)
		got := m.UpdateFromMessage(userID, tt.message)
		if got != tt.updated {
			t.Errorf("UpdateFromMessage(%q) = %v, want %v", tt.message, got, tt.updated)
		}
		tt.check(t, m.Load(userID))
	}
}

func TestUpdateFromMessageIdempotent(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	msg := "i love python programming"
	if !m.UpdateFromMessage("u", msg) {
		t.Fatal("first pass did not update")
	}
	if m.UpdateFromMessage("u", msg) {
		t.Error("second pass updated again (fact dedup failed)")
	}
}

func TestStyleNeedsVerb(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	m.UpdateFromMessage("u", "send me the detailed invoice")
	if got := m.Load("u").Preferences[PrefNoteStyle]; got != "" {
		t.Errorf("note_style = %q, want unset without preference verb", got)
	}

	m.UpdateFromMessage("u", "i prefer detailed notes")
	if got := m.Load("u").Preferences[PrefNoteStyle]; got != "detailed with examples" {
		t.Errorf("note_style = %q", got)
	}
}

func TestApplyDirective(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	reply := `Nice to meet you!

[MEMORY_UPDATE]
type: name
value: Ankur
[/MEMORY_UPDATE]`

	if !m.ApplyDirective(reply, "u") {
		t.Fatal("directive not applied")
	}
	if m.Load("u").Name != "Ankur" {
		t.Errorf("Name = %q", m.Load("u").Name)
	}

	if got := StripDirective(reply); got != "Nice to meet you!" {
		t.Errorf("StripDirective = %q", got)
	}
}

func TestApplyDirectivePreferenceAndFact(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	pref := "[MEMORY_UPDATE]\ntype: preference\nkey: tone\nvalue: casual\n[/MEMORY_UPDATE]"
	if !m.ApplyDirective(pref, "u") {
		t.Fatal("preference directive not applied")
	}
	if m.Load("u").Preferences[PrefTone] != "casual" {
		t.Errorf("tone = %q", m.Load("u").Preferences[PrefTone])
	}

	fact := "[MEMORY_UPDATE]\ntype: fact\nvalue: works at a fintech startup\n[/MEMORY_UPDATE]"
	if !m.ApplyDirective(fact, "u") {
		t.Fatal("fact directive not applied")
	}
	if len(m.Load("u").Facts) != 1 {
		t.Errorf("Facts = %v", m.Load("u").Facts)
	}
}

func TestApplyDirectiveMalformed(t *testing.T) {
	m := NewManager(NewVolatile(), nil)

	cases := []string{
		"no directive here",
		"[MEMORY_UPDATE]\ntype: name\n[/MEMORY_UPDATE]",    // no value
		"[MEMORY_UPDATE]\nvalue: orphan\n[/MEMORY_UPDATE]", // no type
		"[MEMORY_UPDATE]\ntype: preference\nvalue: x\n[/MEMORY_UPDATE]", // preference without key
		"[/MEMORY_UPDATE] backwards [MEMORY_UPDATE]",
	}
	for _, c := range cases {
		if m.ApplyDirective(c, "u") {
			t.Errorf("ApplyDirective(%q) = true, want false", c)
		}
	}
}

func TestManagerDegradesToVolatile(t *testing.T) {
	m := NewManager(failingBackend{}, nil)

	if durable := m.UpdateName("u", "Ankur"); durable {
		t.Error("save reported durable with failing backend")
	}
	if m.Load("u").Name != "Ankur" {
		t.Error("volatile copy not served on load")
	}
	if !m.Clear("u") {
		t.Error("Clear did not report the volatile copy")
	}
	if m.Load("u").Name != "" {
		t.Error("profile survived Clear")
	}
}

func TestMerge(t *testing.T) {
	m := NewManager(NewVolatile(), nil)
	m.AddFact("u", "i love python programming")

	p := m.Merge("u", "Ankur",
		map[string]string{PrefResponseLength: "short"},
		[]string{"i love python programming", "i am learning system design"})

	if p.Name != "Ankur" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.Preferences[PrefResponseLength] != "short" {
		t.Errorf("response_length = %q", p.Preferences[PrefResponseLength])
	}
	if len(p.Facts) != 2 {
		t.Errorf("Facts = %v, want dedup to 2", p.Facts)
	}
}

// failingBackend errors on every call.
type failingBackend struct{}

func (failingBackend) Load(string) (*Profile, error) { return nil, errors.New("db gone") }
func (failingBackend) Save(*Profile) error           { return errors.New("db gone") }
func (failingBackend) Delete(string) (bool, error)   { return false, errors.New("db gone") }
