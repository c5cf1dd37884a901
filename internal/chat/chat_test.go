package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/profile"
)

type scriptedClient struct {
	replies []string
	calls   [][]llm.Message
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	c.calls = append(c.calls, append([]llm.Message(nil), messages...))
	if len(c.replies) == 0 {
		return nil, fmt.Errorf("script exhausted")
	}
	reply := c.replies[0]
	c.replies = c.replies[1:]
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: reply}, Done: true}, nil
}

func (c *scriptedClient) ChatStream(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return c.Chat(ctx, model, messages, opts)
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

func newTestService(t *testing.T, client llm.Client) (*Service, *checkpoint.Checkpointer, *profile.Manager) {
	t.Helper()
	cp := checkpoint.NewCheckpointer(nil, 0, nil)
	profiles := profile.NewManager(profile.NewVolatile(), nil)
	return NewService(nil, client, "test-model", cp, profiles), cp, profiles
}

func TestRunPersistsTurn(t *testing.T) {
	client := &scriptedClient{replies: []string{"Hello there!"}}
	svc, cp, _ := newTestService(t, client)

	resp, err := svc.Run(context.Background(), Request{Query: "hi", ThreadID: "t1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Answer != "Hello there!" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", resp.MessageCount)
	}
	if resp.MemoryUpdated {
		t.Error("memory_updated should be false for a plain greeting")
	}

	state, found := cp.Load("t1")
	if !found {
		t.Fatal("thread not checkpointed")
	}
	if len(state.Messages) != 2 {
		t.Fatalf("checkpoint has %d messages, want 2", len(state.Messages))
	}
	if state.Messages[0].Role != "user" || state.Messages[1].Role != "assistant" {
		t.Errorf("roles = %s, %s", state.Messages[0].Role, state.Messages[1].Role)
	}
}

func TestRunFreshThreadStartsEmpty(t *testing.T) {
	// A thread id with no checkpoint must start from an empty state: the
	// model sees only the system prompt plus the new query.
	client := &scriptedClient{replies: []string{"Welcome!"}}
	svc, cp, _ := newTestService(t, client)

	resp, err := svc.Run(context.Background(), Request{Query: "hi", ThreadID: "never-seen"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.MessageCount != 2 {
		t.Errorf("message_count = %d, want 2", resp.MessageCount)
	}
	if got := len(client.calls[0]); got != 2 {
		t.Errorf("model saw %d messages, want 2", got)
	}
	if _, found := cp.Load("never-seen"); !found {
		t.Error("fresh thread not checkpointed")
	}
}

func TestRunNameCarriesAcrossThreads(t *testing.T) {
	// The name is sourced from the global profile, not thread history:
	// introduced in one thread, it must reach the model in another thread
	// for the same user without any of the first thread's messages.
	client := &scriptedClient{replies: []string{"Nice to meet you, Ankur!", "Your name is Ankur."}}
	svc, cp, _ := newTestService(t, client)

	if _, err := svc.Run(context.Background(), Request{Query: "My name is Ankur", ThreadID: "ta", UserID: "u1"}); err != nil {
		t.Fatalf("Run thread A: %v", err)
	}
	if _, err := svc.Run(context.Background(), Request{Query: "what's my name?", ThreadID: "tb", UserID: "u1"}); err != nil {
		t.Fatalf("Run thread B: %v", err)
	}

	system := client.calls[1][0]
	if system.Role != "system" || !strings.Contains(system.Content, "Ankur") {
		t.Error("second thread's system prompt missing the profile name")
	}
	if got := len(client.calls[1]); got != 2 {
		t.Errorf("second thread's model call saw %d messages, want 2", got)
	}

	state, _ := cp.Load("tb")
	if len(state.Messages) != 2 {
		t.Errorf("thread B checkpoint has %d messages, want 2", len(state.Messages))
	}
}

func TestRunInjectsProfileContext(t *testing.T) {
	client := &scriptedClient{replies: []string{"Hi Ankur!"}}
	svc, _, profiles := newTestService(t, client)
	profiles.UpdateName("u1", "Ankur")

	if _, err := svc.Run(context.Background(), Request{Query: "hello", ThreadID: "t1", UserID: "u1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	system := client.calls[0][0]
	if system.Role != "system" {
		t.Fatalf("first message role = %q", system.Role)
	}
	if !strings.Contains(system.Content, "Ankur") {
		t.Error("system prompt missing profile context")
	}
}

func TestRunEmptyProfilePlaceholder(t *testing.T) {
	client := &scriptedClient{replies: []string{"ok"}}
	svc, _, _ := newTestService(t, client)

	if _, err := svc.Run(context.Background(), Request{Query: "hello", ThreadID: "t1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(client.calls[0][0].Content, "No information saved yet about this user.") {
		t.Error("system prompt missing empty-profile placeholder")
	}
}

func TestRunAppliesMemoryDirective(t *testing.T) {
	client := &scriptedClient{replies: []string{
		"Nice to meet you!\n[MEMORY_UPDATE]\ntype: name\nvalue: Priya\n[/MEMORY_UPDATE]",
	}}
	svc, _, profiles := newTestService(t, client)

	resp, err := svc.Run(context.Background(), Request{Query: "hello", ThreadID: "t1", UserID: "u1"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.MemoryUpdated {
		t.Error("memory_updated should be true")
	}
	if resp.Answer != "Nice to meet you!" {
		t.Errorf("directive not stripped: %q", resp.Answer)
	}
	if got := profiles.Load("u1").Name; got != "Priya" {
		t.Errorf("name = %q, want Priya", got)
	}
}

func TestRunRuleBasedExtraction(t *testing.T) {
	client := &scriptedClient{replies: []string{"Got it."}}
	svc, _, profiles := newTestService(t, client)

	resp, err := svc.Run(context.Background(), Request{
		Query:    "i'm learning goroutines and channels in depth",
		ThreadID: "t1",
		UserID:   "u1",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.MemoryUpdated {
		t.Error("memory_updated should be true after fact extraction")
	}
	if facts := profiles.Load("u1").Facts; len(facts) != 1 {
		t.Errorf("facts = %v", facts)
	}
}

func TestRunHistoryWindow(t *testing.T) {
	// Seed a long thread, then confirm only the last 20 messages plus the
	// system prompt reach the model.
	client := &scriptedClient{replies: []string{"a", "b"}}
	svc, cp, _ := newTestService(t, client)

	state := checkpoint.NewState()
	for i := 0; i < 15; i++ {
		state.Messages = append(state.Messages,
			checkpoint.Message{Role: "user", Content: fmt.Sprintf("q%d", i)},
			checkpoint.Message{Role: "assistant", Content: fmt.Sprintf("a%d", i)},
		)
	}
	cp.Save("t1", state)

	if _, err := svc.Run(context.Background(), Request{Query: "next", ThreadID: "t1"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := len(client.calls[0]); got != 21 {
		t.Errorf("model saw %d messages, want 21", got)
	}
}

func TestRunMergesMetadata(t *testing.T) {
	client := &scriptedClient{replies: []string{"ok"}}
	svc, cp, _ := newTestService(t, client)

	req := Request{Query: "hi", ThreadID: "t1", Metadata: map[string]any{"source": "web"}}
	if _, err := svc.Run(context.Background(), req); err != nil {
		t.Fatalf("Run: %v", err)
	}

	state, _ := cp.Load("t1")
	if state.Metadata["source"] != "web" {
		t.Errorf("metadata = %v", state.Metadata)
	}
}
