package tools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/httpkit"
)

// Weather fetches current conditions from wttr.in. The %C+%t format
// returns a one-line "Condition +NN°C" summary, which is all the agent
// needs to answer a weather question.
type Weather struct {
	baseURL    string
	httpClient *http.Client
}

// NewWeather creates a weather client against wttr.in.
func NewWeather() *Weather {
	return &Weather{
		baseURL: "https://wttr.in",
		httpClient: httpkit.NewClient(
			httpkit.WithTimeout(10 * time.Second),
		),
	}
}

// NewWeatherWithURL creates a weather client against a specific
// endpoint. Used in tests.
func NewWeatherWithURL(baseURL string) *Weather {
	w := NewWeather()
	w.baseURL = baseURL
	return w
}

// Get returns a one-line conditions summary for a city.
func (w *Weather) Get(ctx context.Context, city string) (string, error) {
	if city == "" {
		return "", fmt.Errorf("get_weather: city is required")
	}

	reqURL := fmt.Sprintf("%s/%s?format=%s", w.baseURL, url.PathEscape(city), url.QueryEscape("%C +%t"))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("get_weather: build request: %w", err)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get_weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := httpkit.ReadErrorBody(resp.Body, 256)
		return "", fmt.Errorf("get_weather: HTTP %d: %s", resp.StatusCode, body)
	}

	body := httpkit.ReadErrorBody(resp.Body, 512)
	return strings.TrimSpace(body), nil
}

// Formatted returns a markdown weather line for direct responses.
func (w *Weather) Formatted(ctx context.Context, city string) (string, error) {
	conditions, err := w.Get(ctx, city)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("**Weather in %s:** %s", city, conditions), nil
}

// cityPrepositions mark the word that usually precedes a place name in
// a weather question ("weather in Mumbai", "forecast for Pune").
var cityPrepositions = []string{" in ", " at ", " for "}

// knownCities is the fallback scan when no preposition matches.
var knownCities = []string{
	"mumbai", "delhi", "bangalore", "chennai", "kolkata",
	"hyderabad", "pune", "ahmedabad", "jaipur", "lucknow",
}

// ExtractCity pulls a city name out of a free-text weather query.
// It takes up to three title-cased words after "in"/"at"/"for", or
// falls back to scanning for well-known city names. Returns "" when no
// city is found.
func ExtractCity(query string) string {
	lower := strings.ToLower(query)

	for _, prep := range cityPrepositions {
		idx := strings.Index(lower, prep)
		if idx == -1 {
			continue
		}
		rest := query[idx+len(prep):]
		words := strings.Fields(rest)
		if len(words) == 0 {
			continue
		}
		if len(words) > 3 {
			words = words[:3]
		}
		city := strings.TrimRight(strings.Join(words, " "), "?,.")
		city = strings.TrimSpace(city)
		if city != "" {
			return titleCase(city)
		}
	}

	for _, city := range knownCities {
		if strings.Contains(lower, city) {
			return titleCase(city)
		}
	}

	return ""
}

// titleCase capitalizes the first letter of each word. strings.Title is
// deprecated and the x/text caser is overkill for ASCII city names.
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
