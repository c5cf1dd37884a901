package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/httpkit"
)

// DuckDuckGo implements the Provider interface using the DuckDuckGo
// Instant Answer API. It needs no API key, which makes it the default
// fallback provider. Coverage is thinner than a real search index:
// the API returns an abstract plus related topics, not ranked pages.
type DuckDuckGo struct {
	baseURL    string
	httpClient *http.Client
}

// NewDuckDuckGo creates a DuckDuckGo provider.
func NewDuckDuckGo() *DuckDuckGo {
	return &DuckDuckGo{
		baseURL: "https://api.duckduckgo.com",
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(15 * time.Second),
		),
	}
}

// NewDuckDuckGoWithURL creates a provider against a specific endpoint.
// Used in tests.
func NewDuckDuckGoWithURL(baseURL string) *DuckDuckGo {
	d := NewDuckDuckGo()
	d.baseURL = baseURL
	return d
}

func (d *DuckDuckGo) Name() string { return "duckduckgo" }

// ddgResponse is the Instant Answer API response. RelatedTopics mixes
// plain topics with nested category groups.
type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, opts Options) ([]Result, error) {
	count := opts.Count
	if count == 0 {
		count = 5
	}

	params := url.Values{
		"q":             {query},
		"format":        {"json"},
		"no_html":       {"1"},
		"skip_disambig": {"1"},
	}

	reqURL := fmt.Sprintf("%s/?%s", d.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: request failed: %w", err)
	}
	defer resp.Body.Close()

	// The Instant Answer API returns 202 for some rate-limited paths
	// while still carrying a usable body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body := httpkit.ReadErrorBody(resp.Body, 512)
		return nil, fmt.Errorf("duckduckgo: HTTP %d: %s", resp.StatusCode, body)
	}

	var dr ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("duckduckgo: decode response: %w", err)
	}

	var results []Result
	if dr.AbstractText != "" {
		title := dr.Heading
		if title == "" {
			title = query
		}
		results = append(results, Result{
			Title:   title,
			URL:     dr.AbstractURL,
			Snippet: dr.AbstractText,
		})
	}

	results = appendTopics(results, dr.RelatedTopics, count)
	return results, nil
}

// appendTopics flattens related topics (including nested category
// groups) into results, up to count.
func appendTopics(results []Result, topics []ddgTopic, count int) []Result {
	for _, t := range topics {
		if len(results) >= count {
			break
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, count)
			continue
		}
		if t.Text == "" {
			continue
		}
		results = append(results, Result{
			Title:   t.Text,
			URL:     t.FirstURL,
			Snippet: t.Text,
		})
	}
	return results
}
