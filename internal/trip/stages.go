package trip

import (
	"context"
	"log/slog"

	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/search"
)

// stageTools bundles the model and search access every workflow stage
// needs. Both planners embed it.
type stageTools struct {
	logger *slog.Logger
	llm    llm.Client
	model  string
	search *search.Manager
}

func (t *stageTools) ask(ctx context.Context, prompt string) (string, error) {
	resp, err := t.llm.Chat(ctx, t.model, []llm.Message{{Role: "user", Content: prompt}}, nil)
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

func (t *stageTools) askJSON(ctx context.Context, prompt string) (string, error) {
	resp, err := t.llm.Chat(ctx, t.model, []llm.Message{{Role: "user", Content: prompt}}, &llm.ChatOptions{JSONFormat: true})
	if err != nil {
		return "", err
	}
	return resp.Message.Content, nil
}

// searchResults runs a web search and tolerates failure: stages carry on
// with whatever the model knows when live results are unavailable.
func (t *stageTools) searchResults(ctx context.Context, query string, count int) []search.Result {
	if t.search == nil || !t.search.Configured() {
		return nil
	}
	results, err := t.search.Search(ctx, query, search.Options{Count: count})
	if err != nil {
		t.logger.Warn("stage search failed", "query", query, "error", err)
		return nil
	}
	return results
}
