// Package agent implements the step-protocol agent loop.
//
// The model is driven in plan -> action -> observe -> output mode: every
// reply is a single JSON step object. Plan steps are free; action steps
// execute a registered tool and feed the result back as an observe
// message; an output step ends the run. Conversation history is kept in
// session memory, with a shared bucket that lets answers carry across
// sessions.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/memory"
	"github.com/nugget/sherpa-ai-agent/internal/prompts"
	"github.com/nugget/sherpa-ai-agent/internal/tools"
)

// DefaultSessionID is used when the caller does not supply a session.
const DefaultSessionID = "default"

// stoppedAnswer is returned as a normal answer when the model burns
// through the step budget without producing an output step.
const stoppedAnswer = "Stopped: too many steps."

// Result is one completed agent run.
type Result struct {
	Answer    string   `json:"answer"`
	Steps     []Record `json:"steps"`
	SessionID string   `json:"session_id"`
}

// StepFunc observes steps as the loop takes them. Used by the streaming
// endpoint to forward the timeline; may be nil.
type StepFunc func(Record)

// Loop is the core agent execution loop.
type Loop struct {
	logger   *slog.Logger
	llm      llm.Client
	model    string
	memory   *memory.Store
	registry *tools.Registry
	maxSteps int
}

// NewLoop creates an agent loop. maxSteps caps non-plan steps per run;
// values < 1 default to 8.
func NewLoop(logger *slog.Logger, client llm.Client, model string, mem *memory.Store, reg *tools.Registry, maxSteps int) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSteps < 1 {
		maxSteps = 8
	}
	return &Loop{
		logger:   logger,
		llm:      client,
		model:    model,
		memory:   mem,
		registry: reg,
		maxSteps: maxSteps,
	}
}

// Run executes the agent loop for one user query. The conversation seen by
// the model is the system prompt, the shared cross-session history, the
// session's own history, and finally the query. On success the (query,
// answer) turn is written to both the session and the shared bucket.
func (l *Loop) Run(ctx context.Context, query, sessionID string, onStep StepFunc) (*Result, error) {
	if sessionID == "" {
		sessionID = DefaultSessionID
	}

	l.logger.Info("agent run started",
		"session", sessionID,
		"model", l.model,
		"tools", len(l.registry.Names()),
	)

	dateStr := time.Now().Format("2006-01-02 15:04 MST")
	messages := []llm.Message{
		{Role: "system", Content: prompts.AgentSystemPrompt(dateStr, l.registry.Describe())},
	}
	for _, m := range l.memory.Messages(memory.SharedKey) {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	for _, m := range l.memory.Messages(sessionID) {
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: query})

	var steps []Record
	taken := 0 // non-plan steps

	for {
		resp, err := l.llm.Chat(ctx, l.model, messages, &llm.ChatOptions{JSONFormat: true})
		if err != nil {
			l.logger.Error("LLM call failed", "session", sessionID, "error", err)
			return nil, fmt.Errorf("agent: %w", err)
		}

		content := resp.Message.Content
		messages = append(messages, llm.Message{Role: "assistant", Content: content})

		step, err := decodeStep(content)
		if err != nil {
			l.logger.Error("step decode failed", "session", sessionID, "error", err)
			return nil, fmt.Errorf("agent: %w", err)
		}

		rec := recordOf(step)
		steps = append(steps, rec)
		if onStep != nil {
			onStep(rec)
		}

		switch step.Step {
		case StepPlan:
			l.logger.Debug("plan", "session", sessionID, "content", step.Content)
			continue

		case StepAction:
			taken++
			observation := l.execute(ctx, step, query)
			obs, _ := json.Marshal(map[string]any{
				"step":   StepObserve,
				"output": observation,
			})
			messages = append(messages, llm.Message{Role: "user", Content: string(obs)})

		case StepObserve:
			// Model narrating its own observation; let it keep going.
			taken++

		case StepOutput:
			answer := step.Content
			l.memory.AddTurn(sessionID, query, answer)
			l.memory.AddTurn(memory.SharedKey, query, answer)

			l.logger.Info("agent run completed",
				"session", sessionID,
				"steps", len(steps),
			)
			return &Result{Answer: answer, Steps: steps, SessionID: sessionID}, nil
		}

		if taken > l.maxSteps {
			l.logger.Warn("agent run stopped", "session", sessionID, "steps", len(steps))
			return &Result{Answer: stoppedAnswer, Steps: steps, SessionID: sessionID}, nil
		}
	}
}

// execute runs the tool an action step names. Errors become error
// observations rather than aborting the run, so the model can recover or
// try a different tool.
func (l *Loop) execute(ctx context.Context, step *Step, query string) any {
	name := step.Function

	// web_search is the only tool that may run with a missing input; it
	// falls back to the user's own query.
	fallback := ""
	if name == "web_search" {
		fallback = query
	}
	args := step.Args(l.primaryParam(name), fallback)

	l.logger.Info("tool call", "tool", name, "args", args)

	out, err := l.registry.ExecuteArgs(ctx, name, args)
	if err != nil {
		var unavailable *tools.ErrToolUnavailable
		if errors.As(err, &unavailable) {
			l.logger.Warn("unknown tool requested", "tool", name)
			return map[string]string{"error": unavailable.Error()}
		}
		l.logger.Warn("tool failed", "tool", name, "error", err)
		return map[string]string{"error": fmt.Sprintf("Tool execution failed: %v", err)}
	}
	return out
}

// primaryParam returns the first required parameter of a tool, used to
// bind bare-string inputs. Unknown tools and tools without required
// parameters return "".
func (l *Loop) primaryParam(name string) string {
	tool := l.registry.Get(name)
	if tool == nil {
		return ""
	}
	switch req := tool.Parameters["required"].(type) {
	case []string:
		if len(req) > 0 {
			return req[0]
		}
	case []any:
		if len(req) > 0 {
			if s, ok := req[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

// MemoryStats exposes session memory statistics for the sessions endpoint.
func (l *Loop) MemoryStats() map[string]any {
	return l.memory.Stats()
}
