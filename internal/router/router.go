// Package router classifies user queries into intents and dispatches
// them to the matching handler.
//
// Classification is keyword-based for speed: an LLM round-trip per query
// would add latency to every request. The precedence order matters —
// solo-trip phrases are checked before generic travel words so "plan a
// solo trip to Goa" never lands in the plain travel planner, and travel
// outranks stock so "trip to Tata Memorial" is not a stock query.
package router

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
)

// Intent labels what kind of handler should take a query.
type Intent string

const (
	IntentSoloTrip    Intent = "SOLO_TRIP"
	IntentTravel      Intent = "TRAVEL"
	IntentStock       Intent = "STOCK"
	IntentWeather     Intent = "WEATHER"
	IntentNews        Intent = "NEWS"
	IntentCurrentInfo Intent = "CURRENT_INFO"
	IntentGeneral     Intent = "GENERAL"

	// Reporting-only intents, never produced by Classify.
	IntentGeneralFallback Intent = "GENERAL_FALLBACK"
	IntentManualSearch    Intent = "MANUAL_SEARCH"
	IntentManualStock     Intent = "MANUAL_STOCK"
)

// soloPatterns are checked before everything else.
var soloPatterns = []string{
	"solo trip", "solo travel", "solo journey", "solo vacation",
	"plan a solo trip", "plan solo trip", "plan a solo travel",
	"solo plan", "solo itinerary", "solo tour",
}

var travelKeywords = []string{
	"plan a trip", "plan trip", "plan travel",
	"travel", "trip", "tour", "vacation", "holiday", "journey",
	"flight", "hotel", "booking", "resort", "package",
	"visit", "explore", "destination", "itinerary",
	"makemytrip", "yatra", "goibibo", "booking.com", "airbnb",
	"visa", "passport", "airport", "railway", "bus stand",
}

var stockKeywords = []string{
	"stock", "share", "shares", "nse", "bse", "sensex", "nifty",
	"tata", "reliance", "hdfc", "infosys", "icici", "sbi",
	"wipro", "hcl", "bajaj", "adani", "mahindra", "maruti",
	"stock price", "share price", "quarterly result", "q1", "q2", "q3", "q4",
	"market cap", "dividend", "earnings", "investment", "portfolio",
	"bullish", "bearish", "buy", "sell", "hold",
}

var weatherKeywords = []string{
	"weather", "temperature", "rain", "sunny", "cloudy",
	"forecast", "humidity", "climate", "cold", "hot",
}

var newsKeywords = []string{
	"news", "headline", "breaking", "update", "announcement",
	"happened", "event", "incident",
}

// currentInfoKeywords mark queries that need live data. Sports vocabulary
// dominates because scores and fixtures are never in model knowledge.
var currentInfoKeywords = []string{
	"today", "now", "current", "latest", "recent", "right now",
	"this week", "this month", "2024", "2025", "live",
	"real-time", "at the moment", "happening",

	// Sports
	"score", "match", "cricket", "football", "ipl", "world cup",
	"t20", "odi", "test match", "fifa", "premier league",
	"champions league", "playing", "won", "lost", "result",

	// Football leagues
	"epl", "la liga", "bundesliga", "serie a", "ucl",
	"euro", "asian cup", "copa america", "ligue 1",
	"eredivisie", "mls", "indian super league", "isl",

	// Cricket tournaments
	"bcci", "asia cup", "bbl", "psl", "cpl", "hundred",
	"ranji", "vijay hazare", "syed mushtaq ali",

	// Other sports
	"nba", "nfl", "mlb", "nhl", "tennis", "wimbledon",
	"us open", "australian open", "french open", "formula 1",
	"f1", "motogp", "olympics", "commonwealth games",
	"badminton", "hockey", "kabaddi", "pro kabaddi", "pkl",

	// General sports terms
	"standings", "fixtures", "schedule", "lineup", "squad",
	"injury", "transfer", "goal", "wicket", "runs", "points table",
}

// followupPatterns suggest the query refers back to earlier turns.
var followupPatterns = []string{
	"again", "check", "same", "more", "another", "update", "refresh",
	"latest", "what about", "how about", "tell me more", "explain",
	"which one", "why", "can you", "please", "also", "and",
	"that", "this", "it", "they", "those", "these",
	"compare", "difference", "better", "best", "cheapest", "expensive",
}

var questionPrefixes = []string{
	"what", "which", "why", "how", "where", "when", "who",
	"is it", "are they", "can you",
}

// History topic keyword sets for context escalation, checked in order —
// specific topics before broad ones.
var (
	cricketHistory = []string{
		"cricket", "score", "match", "ipl", "odi", "t20", "test match",
		"runs", "wickets", "batting", "bowling", "india vs", "vs india",
	}
	stockHistory = []string{
		"stock", "share", "nifty", "sensex", "share price", "market", "bse", "nse",
	}
	weatherHistory = []string{
		"weather", "temperature", "rain", "forecast", "humidity", "climate",
	}
	newsHistory = []string{
		"news", "headline", "breaking", "announced", "reported",
	}
	soloHistory = []string{
		"solo trip", "solo travel", "solo journey", "solo plan",
	}
	travelHistory = []string{
		"travel", "trip", "flight", "hotel", "goa", "mumbai",
		"destination", "package", "booking",
	}
)

// contextWindow is how many checkpointed messages the escalation pass
// reads (three exchanges).
const contextWindow = 6

// Decision records how one query was classified, for the audit log.
type Decision struct {
	Timestamp time.Time `json:"timestamp"`
	ThreadID  string    `json:"thread_id,omitempty"`
	Query     string    `json:"query"`
	Primary   Intent    `json:"primary"`
	Final     Intent    `json:"final"`
	Escalated bool      `json:"escalated"`
	Rewritten string    `json:"rewritten_query,omitempty"`
}

// Stats tracks classification statistics.
type Stats struct {
	TotalQueries int64            `json:"total_queries"`
	IntentCounts map[string]int64 `json:"intent_counts"`
	Escalations  int64            `json:"escalations"`
}

// Classifier assigns intents to queries. Safe for concurrent use.
type Classifier struct {
	logger      *slog.Logger
	checkpoints *checkpoint.Checkpointer
	maxAuditLog int

	mu       sync.RWMutex
	auditLog []Decision
	stats    Stats
}

// NewClassifier creates a classifier. The checkpointer is used to read
// thread history during follow-up escalation; nil disables that pass.
func NewClassifier(logger *slog.Logger, cp *checkpoint.Checkpointer) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		logger:      logger,
		checkpoints: cp,
		maxAuditLog: 1000,
		stats:       Stats{IntentCounts: make(map[string]int64)},
	}
}

// Classify returns the intent for a query, plus the query to actually
// run — the escalation pass may rewrite an ambiguous follow-up into a
// self-contained one.
func (c *Classifier) Classify(query, threadID string) (Intent, string) {
	primary := classifyKeywords(query)
	final, rewritten := primary, query

	if primary == IntentGeneral && isContextual(query) {
		final, rewritten = c.escalate(query, threadID)
	}

	c.record(Decision{
		Timestamp: time.Now(),
		ThreadID:  threadID,
		Query:     query,
		Primary:   primary,
		Final:     final,
		Escalated: final != primary || rewritten != query,
		Rewritten: rewrittenOrEmpty(query, rewritten),
	})

	c.logger.Debug("intent classified",
		"thread", threadID,
		"primary", primary,
		"final", final,
	)
	return final, rewritten
}

// classifyKeywords is the primary, history-free pass.
func classifyKeywords(query string) Intent {
	lower := strings.ToLower(query)

	for _, p := range soloPatterns {
		if strings.Contains(lower, p) {
			return IntentSoloTrip
		}
	}
	if strings.Contains(lower, "solo") &&
		(strings.Contains(lower, "trip") || strings.Contains(lower, "travel")) {
		return IntentSoloTrip
	}

	for _, kw := range travelKeywords {
		if strings.Contains(lower, kw) {
			return IntentTravel
		}
	}
	for _, kw := range stockKeywords {
		if strings.Contains(lower, kw) {
			return IntentStock
		}
	}
	for _, kw := range weatherKeywords {
		if strings.Contains(lower, kw) {
			return IntentWeather
		}
	}
	for _, kw := range newsKeywords {
		if strings.Contains(lower, kw) {
			return IntentNews
		}
	}
	for _, kw := range currentInfoKeywords {
		if strings.Contains(lower, kw) {
			return IntentCurrentInfo
		}
	}
	return IntentGeneral
}

// isContextual reports whether a query looks like a follow-up that needs
// thread history to classify: short with a follow-up marker, or a short
// question-word-led clause.
func isContextual(query string) bool {
	lower := strings.ToLower(query)
	words := len(strings.Fields(query))

	if words <= 8 {
		for _, p := range followupPatterns {
			if strings.Contains(lower, p) {
				return true
			}
		}
	}
	if words <= 6 {
		for _, prefix := range questionPrefixes {
			if strings.HasPrefix(lower, prefix) {
				return true
			}
		}
	}
	return false
}

// escalate re-classifies an ambiguous follow-up from the thread's recent
// history. Cricket context also rewrites the query, since "who won?" is
// useless as a search term on its own.
func (c *Classifier) escalate(query, threadID string) (Intent, string) {
	if c.checkpoints == nil || threadID == "" {
		return IntentGeneral, query
	}

	state, found := c.checkpoints.Load(threadID)
	if !found || len(state.Messages) == 0 {
		return IntentGeneral, query
	}

	recent := state.Messages
	if len(recent) > contextWindow {
		recent = recent[len(recent)-contextWindow:]
	}
	var sb strings.Builder
	for _, m := range recent {
		sb.WriteString(m.Content)
		sb.WriteString(" ")
	}
	history := strings.ToLower(sb.String())

	switch {
	case containsAny(history, cricketHistory):
		return IntentCurrentInfo, "latest cricket score India " + query
	case containsAny(history, stockHistory):
		return IntentStock, query
	case containsAny(history, weatherHistory):
		return IntentWeather, query
	case containsAny(history, newsHistory):
		return IntentNews, query
	case containsAny(history, soloHistory):
		return IntentSoloTrip, query
	case containsAny(history, travelHistory):
		return IntentTravel, query
	}

	// Substantial but topic-less history stays GENERAL; the memory-chat
	// handler replays the thread so the model can answer from context.
	return IntentGeneral, query
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

func rewrittenOrEmpty(query, rewritten string) string {
	if rewritten == query {
		return ""
	}
	return rewritten
}

// record appends to the audit log and updates counters.
func (c *Classifier) record(d Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.auditLog = append(c.auditLog, d)
	if len(c.auditLog) > c.maxAuditLog {
		c.auditLog = c.auditLog[len(c.auditLog)-c.maxAuditLog:]
	}

	c.stats.TotalQueries++
	c.stats.IntentCounts[string(d.Final)]++
	if d.Escalated {
		c.stats.Escalations++
	}
}

// Stats returns a copy of the classification counters.
func (c *Classifier) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(map[string]int64, len(c.stats.IntentCounts))
	for k, v := range c.stats.IntentCounts {
		counts[k] = v
	}
	return Stats{
		TotalQueries: c.stats.TotalQueries,
		IntentCounts: counts,
		Escalations:  c.stats.Escalations,
	}
}

// Recent returns the most recent audit decisions, newest last.
func (c *Classifier) Recent(n int) []Decision {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n <= 0 || n > len(c.auditLog) {
		n = len(c.auditLog)
	}
	out := make([]Decision, n)
	copy(out, c.auditLog[len(c.auditLog)-n:])
	return out
}
