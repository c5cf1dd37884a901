package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/fetch"
	"github.com/nugget/sherpa-ai-agent/internal/search"
)

// RegisterBuiltins wires the standard capability set into the registry.
// Nil dependencies skip the tools that need them, so a search-less
// deployment still gets get_current_datetime and get_weather.
func RegisterBuiltins(r *Registry, mgr *search.Manager, fetcher *fetch.Fetcher, weather *Weather) {
	if mgr != nil && mgr.Configured() {
		r.Register(&Tool{
			Name:        "web_search",
			Description: "Search the web for current information. Use for anything outside your training data: news, prices, scores, schedules.",
			Parameters:  search.ToolDefinition(),
			Handler:     search.ToolHandler(mgr),
		})

		r.Register(&Tool{
			Name:        "get_stock_price",
			Description: "Look up the latest price for an Indian stock or index (NSE/BSE, Sensex, Nifty).",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"symbol": map[string]any{
						"type":        "string",
						"description": "Stock name or index (e.g., 'Reliance', 'Nifty 50', 'TCS').",
					},
				},
				"required": []string{"symbol"},
			},
			Handler: stockHandler(mgr),
		})

		r.Register(&Tool{
			Name:        "search_news",
			Description: "Search for recent news headlines on a topic.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "News topic or subject.",
					},
				},
				"required": []string{"topic"},
			},
			Handler: newsHandler(mgr),
		})
	}

	if fetcher != nil {
		r.Register(&Tool{
			Name:        "fetch_page",
			Description: "Fetch a web page and extract its readable text content.",
			Parameters:  fetch.ToolDefinition(),
			Handler:     fetch.ToolHandler(fetcher),
		})
	}

	if weather != nil {
		r.Register(&Tool{
			Name:        "get_weather",
			Description: "Get current weather conditions for a city.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "City name (e.g., 'Mumbai', 'Delhi').",
					},
				},
				"required": []string{"city"},
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				city, _ := args["city"].(string)
				return weather.Formatted(ctx, city)
			},
		})
	}

	r.Register(&Tool{
		Name:        "get_current_datetime",
		Description: "Get the current date and time. Use when the user asks about today's date or the time.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			now := time.Now()
			return fmt.Sprintf("Current date and time: %s (%s)",
				now.Format("Monday, January 2, 2006 3:04 PM"),
				now.Format(time.RFC3339)), nil
		},
	})
}

// stockHandler answers stock questions through web search scoped to
// Indian market terms. There is no free NSE/BSE quote API worth
// depending on, so the agent reads prices out of search snippets.
func stockHandler(mgr *search.Manager) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		symbol, _ := args["symbol"].(string)
		if symbol == "" {
			return "", fmt.Errorf("get_stock_price: symbol is required")
		}

		query := fmt.Sprintf("%s stock price today NSE BSE", symbol)
		results, err := mgr.Search(ctx, query, search.Options{Count: 5})
		if err != nil {
			return "", fmt.Errorf("get_stock_price: %w", err)
		}
		if len(results) == 0 {
			return fmt.Sprintf("No price data found for %s.", symbol), nil
		}
		return search.FormatResults(results, 5), nil
	}
}

// newsHandler searches for recent headlines.
func newsHandler(mgr *search.Manager) func(ctx context.Context, args map[string]any) (string, error) {
	return func(ctx context.Context, args map[string]any) (string, error) {
		topic, _ := args["topic"].(string)
		if topic == "" {
			return "", fmt.Errorf("search_news: topic is required")
		}

		results, err := mgr.Search(ctx, "latest news "+topic, search.Options{Count: 5})
		if err != nil {
			return "", fmt.Errorf("search_news: %w", err)
		}
		if len(results) == 0 {
			return fmt.Sprintf("No recent news found about %s.", topic), nil
		}
		return search.FormatResults(results, 5), nil
	}
}
