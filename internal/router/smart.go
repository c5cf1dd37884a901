package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/agent"
	"github.com/nugget/sherpa-ai-agent/internal/chat"
	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/tools"
	"github.com/nugget/sherpa-ai-agent/internal/trip"
)

// Tool names reported in smart-chat responses.
const (
	toolWebSearch = "smart_web_search"
	toolStock     = "stock_research_workflow"
	toolSoloTrip  = "solo_trip_planner"
	toolTravel    = "travel_planner_workflow"
	toolWeather   = "get_weather"
	toolNews      = "search_news"
)

// fallbackPhrases mark a chat answer as a knowledge-gap admission. Any
// hit re-dispatches the query through the web-search agent.
var fallbackPhrases = []string{
	"i don't have", "i cannot provide", "my knowledge",
	"i'm unable to", "i am unable to", "as of my",
	"i don't know", "i'm not sure", "outside my knowledge",
	"real-time", "current data", "up-to-date",
	"i cannot access", "i can't access",
	"i recommend checking", "check a website", "visit a website",
	"sports news", "official website", "sports app",
	"i can't browse", "i cannot browse", "no access to internet",
	"knowledge cutoff", "training data", "october 2023",
	"i suggest checking", "please check", "for the latest",
}

// SmartRequest is one smart-chat turn. ForceTool bypasses
// classification when set.
type SmartRequest struct {
	Query     string `json:"query"`
	ThreadID  string `json:"thread_id"`
	UserID    string `json:"user_id,omitempty"`
	ForceTool string `json:"force_tool,omitempty"`
}

// Dispatcher routes smart-chat queries to the handler the classifier
// picks: direct tools, the agent loop, the memory chat, or one of the
// trip workflows. Response shapes vary per branch, so it returns a
// generic map; every branch includes answer, intent, tool_used, and
// auto_detected.
type Dispatcher struct {
	logger      *slog.Logger
	classifier  *Classifier
	agent       *agent.Loop
	chat        *chat.Service
	solo        *trip.SoloPlanner
	travel      *trip.TravelPlanner
	weather     *tools.Weather
	checkpoints *checkpoint.Checkpointer
}

// NewDispatcher wires the smart-chat dispatcher.
func NewDispatcher(logger *slog.Logger, classifier *Classifier, loop *agent.Loop, chatSvc *chat.Service, solo *trip.SoloPlanner, travel *trip.TravelPlanner, weather *tools.Weather, cp *checkpoint.Checkpointer) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:      logger,
		classifier:  classifier,
		agent:       loop,
		chat:        chatSvc,
		solo:        solo,
		travel:      travel,
		weather:     weather,
		checkpoints: cp,
	}
}

// Run handles one smart-chat request.
func (d *Dispatcher) Run(ctx context.Context, req SmartRequest) (map[string]any, error) {
	switch req.ForceTool {
	case "search":
		resp, err := d.runAgent(ctx, req.Query, req.ThreadID)
		if err != nil {
			return nil, err
		}
		resp["intent"] = string(IntentManualSearch)
		resp["tool_used"] = toolWebSearch
		resp["auto_detected"] = false
		return resp, nil
	case "stock":
		resp, err := d.runAgent(ctx, req.Query, req.ThreadID)
		if err != nil {
			return nil, err
		}
		d.saveTurn(req.ThreadID, req.Query, resp["answer"].(string))
		resp["intent"] = string(IntentManualStock)
		resp["tool_used"] = toolStock
		resp["auto_detected"] = false
		return resp, nil
	}

	intent, rewritten := d.classifier.Classify(req.Query, req.ThreadID)
	agentQuery := req.Query
	if rewritten != "" {
		agentQuery = rewritten
	}
	d.logger.Info("smart chat dispatch", "intent", intent, "thread", req.ThreadID)

	switch intent {
	case IntentStock:
		return d.dispatchAgent(ctx, req, agentQuery, IntentStock, toolStock)
	case IntentSoloTrip:
		return d.dispatchSoloTrip(ctx, req)
	case IntentTravel:
		return d.dispatchTravel(ctx, req)
	case IntentWeather:
		return d.dispatchWeather(ctx, req)
	case IntentNews:
		return d.dispatchAgent(ctx, req, agentQuery, IntentNews, toolNews)
	case IntentCurrentInfo:
		return d.dispatchAgent(ctx, req, agentQuery, IntentCurrentInfo, toolWebSearch)
	default:
		return d.dispatchGeneral(ctx, req)
	}
}

// dispatchAgent covers the branches that run the step-protocol agent
// and differ only in reported intent and tool.
func (d *Dispatcher) dispatchAgent(ctx context.Context, req SmartRequest, query string, intent Intent, tool string) (map[string]any, error) {
	resp, err := d.runAgent(ctx, query, req.ThreadID)
	if err != nil {
		return nil, err
	}
	d.saveTurn(req.ThreadID, req.Query, resp["answer"].(string))
	resp["intent"] = string(intent)
	resp["tool_used"] = tool
	resp["auto_detected"] = true
	return resp, nil
}

func (d *Dispatcher) dispatchSoloTrip(ctx context.Context, req SmartRequest) (map[string]any, error) {
	soloThread := fmt.Sprintf("solo_trip_%s_%s", req.ThreadID, time.Now().Format("20060102150405"))
	result, err := d.solo.Start(ctx, req.Query, soloThread)
	if err != nil {
		return nil, err
	}

	if result.Status == trip.StatusAwaitingInput {
		state := result.InterruptData
		return map[string]any{
			"answer":            "I need some information to plan your solo trip. Please fill out the preferences form.",
			"intent":            string(IntentSoloTrip),
			"tool_used":         toolSoloTrip,
			"auto_detected":     true,
			"status":            trip.StatusAwaitingInput,
			"thread_id":         soloThread,
			"questions":         state.HumanQuestions,
			"origin":            state.Origin,
			"destination":       state.Destination,
			"distance_km":       state.DistanceKM,
			"destination_info":  state.DestinationInfo,
			"transport_options": state.TransportOptions,
		}, nil
	}

	answer := "Solo trip planning complete."
	if result.Result != nil && result.Result.FinalPackage != "" {
		answer = result.Result.FinalPackage
	}
	d.saveTurn(req.ThreadID, req.Query, answer)
	return map[string]any{
		"answer":        answer,
		"intent":        string(IntentSoloTrip),
		"tool_used":     toolSoloTrip,
		"auto_detected": true,
		"status":        trip.StatusComplete,
		"thread_id":     soloThread,
	}, nil
}

func (d *Dispatcher) dispatchTravel(ctx context.Context, req SmartRequest) (map[string]any, error) {
	travelThread := fmt.Sprintf("travel_%s_%s", req.ThreadID, time.Now().Format("20060102150405"))
	result, err := d.travel.Run(ctx, travelThread, req.Query, "", "", nil)
	if err != nil {
		return nil, err
	}

	answer := result.FinalSummary
	if answer == "" {
		answer = "Travel planning complete."
	}
	d.saveTurn(req.ThreadID, req.Query, answer)

	steps := make([]map[string]any, 0, len(d.travel.StageNames()))
	for _, name := range d.travel.StageNames() {
		steps = append(steps, map[string]any{"step": name, "status": "complete"})
	}

	return map[string]any{
		"answer":             answer,
		"intent":             string(IntentTravel),
		"tool_used":          toolTravel,
		"auto_detected":      true,
		"destination_info":   result.DestinationInfo,
		"transport_info":     result.TransportInfo,
		"accommodation_info": result.AccommodationInfo,
		"activities_info":    result.ActivitiesInfo,
		"food_shopping_info": result.FoodShoppingInfo,
		"requirements_info":  result.RequirementsInfo,
		"emergency_info":     result.EmergencyInfo,
		"packages":           result.Packages,
		"final_summary":      result.FinalSummary,
		"steps":              steps,
	}, nil
}

func (d *Dispatcher) dispatchWeather(ctx context.Context, req SmartRequest) (map[string]any, error) {
	city := tools.ExtractCity(req.Query)
	if city == "" {
		// No recognizable city in the query: let the agent work it out.
		return d.dispatchAgent(ctx, req, req.Query, IntentWeather, toolWeather)
	}

	answer, err := d.weather.Formatted(ctx, city)
	if err != nil {
		answer = fmt.Sprintf("**Weather in %s:** Unable to fetch weather.", city)
	}
	d.saveTurn(req.ThreadID, req.Query, answer)
	return map[string]any{
		"answer":        answer,
		"intent":        string(IntentWeather),
		"tool_used":     toolWeather,
		"auto_detected": true,
		"steps": []map[string]any{
			{"step": "get_weather", "status": "complete", "city": city},
		},
	}, nil
}

func (d *Dispatcher) dispatchGeneral(ctx context.Context, req SmartRequest) (map[string]any, error) {
	chatResp, err := d.chat.Run(ctx, chat.Request{
		Query:    req.Query,
		ThreadID: req.ThreadID,
		UserID:   req.UserID,
	})
	if err != nil {
		return nil, err
	}

	if needsFallback(chatResp.Answer) {
		d.logger.Info("chat answer admits knowledge gap, retrying via agent", "thread", req.ThreadID)
		resp, err := d.runAgent(ctx, req.Query, req.ThreadID)
		if err != nil {
			return nil, err
		}
		d.saveTurn(req.ThreadID, req.Query, resp["answer"].(string))
		resp["intent"] = string(IntentGeneralFallback)
		resp["tool_used"] = toolWebSearch
		resp["auto_detected"] = true
		resp["fallback_reason"] = "LLM knowledge outdated or unavailable"
		return resp, nil
	}

	return map[string]any{
		"answer":         chatResp.Answer,
		"thread_id":      chatResp.ThreadID,
		"message_count":  chatResp.MessageCount,
		"memory_updated": chatResp.MemoryUpdated,
		"intent":         string(IntentGeneral),
		"tool_used":      nil,
		"auto_detected":  true,
	}, nil
}

func (d *Dispatcher) runAgent(ctx context.Context, query, threadID string) (map[string]any, error) {
	result, err := d.agent.Run(ctx, query, threadID, nil)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"answer":     result.Answer,
		"steps":      result.Steps,
		"session_id": result.SessionID,
	}, nil
}

// saveTurn appends the exchange to the thread's checkpoint so follow-up
// questions see it. Memory chat saves its own turns; every other branch
// goes through here.
func (d *Dispatcher) saveTurn(threadID, query, answer string) {
	if d.checkpoints == nil || threadID == "" {
		return
	}
	state, found := d.checkpoints.Load(threadID)
	if !found {
		state = checkpoint.NewState()
	}
	now := time.Now()
	state.Messages = append(state.Messages,
		checkpoint.Message{Role: "user", Content: query, Timestamp: now},
		checkpoint.Message{Role: "assistant", Content: answer, Timestamp: now},
	)
	d.checkpoints.Save(threadID, state)
}

func needsFallback(answer string) bool {
	lower := strings.ToLower(answer)
	for _, phrase := range fallbackPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
