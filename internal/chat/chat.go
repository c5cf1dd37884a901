// Package chat implements checkpointed memory chat.
//
// Each thread's conversation is persisted through the checkpoint store so
// follow-ups survive restarts, and the user's global profile is injected
// into the system prompt so the model knows the user across threads. The
// model signals new profile information through an in-band
// [MEMORY_UPDATE] directive, which is applied and stripped before the
// reply reaches the caller; a rule-based extractor catches the rest.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/profile"
	"github.com/nugget/sherpa-ai-agent/internal/prompts"
)

// historyWindow caps how many checkpointed messages are replayed to the
// model per turn. The full history stays in the checkpoint.
const historyWindow = 20

// Request is one memory-chat turn.
type Request struct {
	Query    string         `json:"query"`
	ThreadID string         `json:"thread_id"`
	UserID   string         `json:"user_id,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Response mirrors the chat-with-memory wire contract.
type Response struct {
	Answer        string `json:"answer"`
	ThreadID      string `json:"thread_id"`
	MessageCount  int    `json:"message_count"`
	MemoryUpdated bool   `json:"memory_updated"`
}

// Service runs memory chat against a model, a checkpoint store, and a
// profile manager.
type Service struct {
	logger      *slog.Logger
	llm         llm.Client
	model       string
	checkpoints *checkpoint.Checkpointer
	profiles    *profile.Manager
}

// NewService creates a memory-chat service.
func NewService(logger *slog.Logger, client llm.Client, model string, cp *checkpoint.Checkpointer, profiles *profile.Manager) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		logger:      logger,
		llm:         client,
		model:       model,
		checkpoints: cp,
		profiles:    profiles,
	}
}

// Run executes one chat turn: load profile context and thread state,
// append the query, call the model with the recent history window, apply
// any memory directive, and checkpoint the updated thread.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	userID := req.UserID
	if userID == "" {
		userID = profile.DefaultUserID
	}

	userContext := s.profiles.ContextPrompt(userID)

	state, found := s.checkpoints.Load(req.ThreadID)
	if !found {
		state = checkpoint.NewState()
	}
	s.logger.Debug("thread loaded",
		"thread", req.ThreadID,
		"messages", len(state.Messages),
		"user", userID,
	)

	state.Messages = append(state.Messages, checkpoint.Message{
		Role:      "user",
		Content:   req.Query,
		Timestamp: time.Now(),
	})

	messages := []llm.Message{
		{Role: "system", Content: prompts.ChatSystemPrompt(userContext)},
	}
	history := state.Messages
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}
	for _, m := range history {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}

	resp, err := s.llm.Chat(ctx, s.model, messages, nil)
	if err != nil {
		return nil, fmt.Errorf("chat: %w", err)
	}
	reply := resp.Message.Content

	// The model may end its reply with a [MEMORY_UPDATE] block; apply it
	// to the profile and hide it from the user.
	memoryUpdated := s.profiles.ApplyDirective(reply, userID)
	reply = profile.StripDirective(reply)

	// Rule-based extraction catches disclosures the model didn't flag.
	if s.profiles.UpdateFromMessage(userID, req.Query) {
		memoryUpdated = true
	}

	state.Messages = append(state.Messages, checkpoint.Message{
		Role:      "assistant",
		Content:   reply,
		Timestamp: time.Now(),
	})
	if req.Metadata != nil {
		for k, v := range req.Metadata {
			state.Metadata[k] = v
		}
	}

	s.checkpoints.Save(req.ThreadID, state)

	return &Response{
		Answer:        reply,
		ThreadID:      req.ThreadID,
		MessageCount:  len(state.Messages),
		MemoryUpdated: memoryUpdated,
	}, nil
}
