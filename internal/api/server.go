// Package api implements the orchestration HTTP API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/nugget/sherpa-ai-agent/internal/agent"
	"github.com/nugget/sherpa-ai-agent/internal/buildinfo"
	"github.com/nugget/sherpa-ai-agent/internal/chat"
	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/memory"
	"github.com/nugget/sherpa-ai-agent/internal/profile"
	"github.com/nugget/sherpa-ai-agent/internal/router"
	"github.com/nugget/sherpa-ai-agent/internal/trip"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response,
// which is not actionable but worth tracking for debugging.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address    string
	port       int
	logger     *slog.Logger
	server     *http.Server
	loop       *agent.Loop
	chat       *chat.Service
	smart      *router.Dispatcher
	classifier *router.Classifier
	memory     *memory.Store
	checkpoint *checkpoint.Checkpointer
	profiles   *profile.Manager
	solo       *trip.SoloPlanner
	travel     *trip.TravelPlanner
	llm        llm.Client
	durable    bool
}

// NewServer creates a new API server.
func NewServer(address string, port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{address: address, port: port, logger: logger}
}

// SetAgent configures the step-protocol agent and its session memory.
func (s *Server) SetAgent(loop *agent.Loop, mem *memory.Store) {
	s.loop = loop
	s.memory = mem
}

// SetChat configures the memory chat service with its stores.
func (s *Server) SetChat(svc *chat.Service, cp *checkpoint.Checkpointer, profiles *profile.Manager) {
	s.chat = svc
	s.checkpoint = cp
	s.profiles = profiles
}

// SetSmartChat configures the smart-chat dispatcher and classifier.
func (s *Server) SetSmartChat(d *router.Dispatcher, c *router.Classifier) {
	s.smart = d
	s.classifier = c
}

// SetPlanners configures the trip workflow planners.
func (s *Server) SetPlanners(solo *trip.SoloPlanner, travel *trip.TravelPlanner) {
	s.solo = solo
	s.travel = travel
}

// SetHealthProbes configures what the health endpoint reports: the
// model client to ping and whether state landed on a durable backend.
func (s *Server) SetHealthProbes(client llm.Client, durable bool) {
	s.llm = client
	s.durable = durable
}

// Handler builds the route table. Split from Start so tests can drive
// the mux through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent endpoints
	mux.HandleFunc("POST /agent/web-search", s.handleWebSearch)
	mux.HandleFunc("POST /agent/reset-memory", s.handleResetMemory)
	mux.HandleFunc("GET /agent/sessions", s.handleSessions)
	mux.HandleFunc("POST /agent/smart-chat", s.handleSmartChat)

	// Memory chat endpoints
	mux.HandleFunc("POST /chat/with-memory", s.handleChatWithMemory)
	mux.HandleFunc("GET /chat/history/{thread_id}", s.handleChatHistory)
	mux.HandleFunc("DELETE /chat/history/{thread_id}", s.handleChatHistoryDelete)
	mux.HandleFunc("GET /chat/stream", s.handleChatStream)

	// Global memory endpoints
	mux.HandleFunc("GET /memory/{user_id}", s.handleMemoryGet)
	mux.HandleFunc("POST /memory/{user_id}", s.handleMemoryUpdate)
	mux.HandleFunc("DELETE /memory/{user_id}", s.handleMemoryClear)

	// Trip workflow endpoints
	mux.HandleFunc("POST /agent/solo-trip/start", s.handleSoloTripStart)
	mux.HandleFunc("POST /agent/solo-trip/resume", s.handleSoloTripResume)
	mux.HandleFunc("GET /agent/solo-trip/package/{thread_id}", s.handleSoloTripPackage)
	mux.HandleFunc("GET /agent/solo-trip/qr/{thread_id}", s.handleSoloTripQR)
	mux.HandleFunc("POST /agent/travel-planner", s.handleTravelPlanner)

	// Router introspection
	mux.HandleFunc("GET /router/stats", s.handleRouterStats)
	mux.HandleFunc("GET /router/audit", s.handleRouterAudit)

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 300 * time.Second, // trip workflows run many model calls
	}

	addr := s.address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Sherpa",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "healthy"}

	if s.llm != nil {
		pingCtx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.llm.Ping(pingCtx); err != nil {
			resp["model"] = "unreachable"
		} else {
			resp["model"] = "reachable"
		}
	}
	if s.durable {
		resp["store"] = "durable"
	} else {
		resp["store"] = "volatile"
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// WebSearchRequest is the agent endpoint request body.
type WebSearchRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
}

func (s *Server) handleWebSearch(w http.ResponseWriter, r *http.Request) {
	var req WebSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing query")
		return
	}

	result, err := s.loop.Run(r.Context(), req.Query, req.SessionID, nil)
	if err != nil {
		s.logger.Error("agent run failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent search failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, result, s.logger)
}

func (s *Server) handleResetMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.SessionID == "" {
		req.SessionID = agent.DefaultSessionID
	}
	s.memory.Clear(req.SessionID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"status":     "cleared",
		"session_id": req.SessionID,
	}, s.logger)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"sessions": s.memory.Sessions(),
		"stats":    s.memory.Stats(),
	}, s.logger)
}

func (s *Server) handleSmartChat(w http.ResponseWriter, r *http.Request) {
	var req router.SmartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing query")
		return
	}
	if req.ThreadID == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing thread_id")
		return
	}

	resp, err := s.smart.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("smart chat failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "smart chat failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleChatWithMemory(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing query")
		return
	}
	if req.ThreadID == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing thread_id")
		return
	}

	resp, err := s.chat.Run(r.Context(), req)
	if err != nil {
		s.logger.Error("chat failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "chat failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	w.Header().Set("Content-Type", "application/json")
	state, found := s.checkpoint.Load(threadID)
	if !found {
		writeJSON(w, map[string]any{
			"thread_id":     threadID,
			"messages":      []checkpoint.Message{},
			"metadata":      map[string]any{},
			"message_count": 0,
		}, s.logger)
		return
	}

	writeJSON(w, map[string]any{
		"thread_id":     threadID,
		"messages":      state.Messages,
		"metadata":      state.Metadata,
		"message_count": len(state.Messages),
	}, s.logger)
}

func (s *Server) handleChatHistoryDelete(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")
	deleted := s.checkpoint.Delete(threadID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"thread_id": threadID,
		"deleted":   deleted,
	}, s.logger)
}

func (s *Server) handleMemoryGet(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.profiles.Load(userID), s.logger)
}

// MemoryUpdateRequest is a partial profile update.
type MemoryUpdateRequest struct {
	Name        string            `json:"name,omitempty"`
	Preferences map[string]string `json:"preferences,omitempty"`
	Facts       []string          `json:"facts,omitempty"`
}

func (s *Server) handleMemoryUpdate(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	var req MemoryUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	merged := s.profiles.Merge(userID, req.Name, req.Preferences, req.Facts)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"user_id": userID,
		"updated": true,
		"memory":  merged,
	}, s.logger)
}

func (s *Server) handleMemoryClear(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")
	cleared := s.profiles.Clear(userID)

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"user_id": userID,
		"cleared": cleared,
	}, s.logger)
}

// SoloTripStartRequest begins a solo-trip workflow run.
type SoloTripStartRequest struct {
	Query    string `json:"query"`
	ThreadID string `json:"thread_id,omitempty"`
}

func (s *Server) handleSoloTripStart(w http.ResponseWriter, r *http.Request) {
	var req SoloTripStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.ThreadID == "" {
		req.ThreadID = "solo_trip_" + newID()
	}

	result, err := s.solo.Start(r.Context(), req.Query, req.ThreadID)
	if err != nil {
		s.logger.Error("solo trip start failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "solo trip failed: "+err.Error())
		return
	}

	resp := map[string]any{
		"success":   true,
		"status":    result.Status,
		"thread_id": result.ThreadID,
		"message":   result.Message,
	}
	if st := result.InterruptData; st != nil {
		resp["questions"] = st.HumanQuestions
		resp["origin"] = st.Origin
		resp["destination"] = st.Destination
		resp["distance_km"] = st.DistanceKM
		resp["destination_info"] = st.DestinationInfo
		resp["transport_options"] = st.TransportOptions
	}
	if st := result.Result; st != nil {
		resp["final_package"] = st.FinalPackage
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, resp, s.logger)
}

// SoloTripResumeRequest continues a suspended solo-trip run. The
// user_responses key is accepted as an alias for preferences.
type SoloTripResumeRequest struct {
	ThreadID      string         `json:"thread_id"`
	Preferences   map[string]any `json:"preferences"`
	UserResponses map[string]any `json:"user_responses"`
}

func (s *Server) handleSoloTripResume(w http.ResponseWriter, r *http.Request) {
	var req SoloTripResumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ThreadID == "" {
		s.errorResponse(w, http.StatusBadRequest, "thread_id is required")
		return
	}
	prefs := req.Preferences
	if len(prefs) == 0 {
		prefs = req.UserResponses
	}
	if len(prefs) == 0 {
		s.errorResponse(w, http.StatusBadRequest, "preferences are required")
		return
	}

	result, err := s.solo.Resume(r.Context(), req.ThreadID, prefs)
	if err != nil {
		s.logger.Error("solo trip resume failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "solo trip resume failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":         true,
		"status":          result.Status,
		"thread_id":       result.ThreadID,
		"final_package":   result.FinalPackage,
		"final_itinerary": result.FinalPackage,
	}, s.logger)
}

func (s *Server) handleSoloTripPackage(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	markdown, err := s.solo.Package(threadID)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, "package not found: "+err.Error())
		return
	}

	page, err := trip.RenderPackageHTML("Solo Trip Package", markdown)
	if err != nil {
		s.logger.Error("package render failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "package render failed")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(page); err != nil {
		s.logger.Debug("failed to write package page", "error", err)
	}
}

func (s *Server) handleSoloTripQR(w http.ResponseWriter, r *http.Request) {
	threadID := r.PathValue("thread_id")

	// Verify the package exists before minting a QR code for it.
	if _, err := s.solo.Package(threadID); err != nil {
		s.errorResponse(w, http.StatusNotFound, "package not found: "+err.Error())
		return
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	pkgURL := fmt.Sprintf("%s://%s/agent/solo-trip/package/%s", scheme, r.Host, threadID)

	png, err := trip.PackageQR(pkgURL, 256)
	if err != nil {
		s.logger.Error("qr encode failed", "thread", threadID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "qr encode failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if _, err := w.Write(png); err != nil {
		s.logger.Debug("failed to write qr image", "error", err)
	}
}

// TravelPlannerRequest runs the full trip research pipeline.
type TravelPlannerRequest struct {
	Query       string                  `json:"query"`
	Source      string                  `json:"source,omitempty"`
	Destination string                  `json:"destination,omitempty"`
	Preferences *trip.TravelPreferences `json:"preferences,omitempty"`
}

func (s *Server) handleTravelPlanner(w http.ResponseWriter, r *http.Request) {
	var req TravelPlannerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing query")
		return
	}

	result, err := s.travel.Run(r.Context(), "travel_"+newID(), req.Query, req.Source, req.Destination, req.Preferences)
	if err != nil {
		s.logger.Error("travel planner failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "travel planner failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"success":            result.Success,
		"query":              result.Query,
		"workflow":           "travel_planner",
		"nodes_executed":     s.travel.StageNames(),
		"source":             result.Source,
		"destination":        result.Destination,
		"destination_info":   result.DestinationInfo,
		"transport_info":     result.TransportInfo,
		"accommodation_info": result.AccommodationInfo,
		"activities_info":    result.ActivitiesInfo,
		"food_shopping_info": result.FoodShoppingInfo,
		"requirements_info":  result.RequirementsInfo,
		"emergency_info":     result.EmergencyInfo,
		"packages":           result.Packages,
		"final_summary":      result.FinalSummary,
		"error":              result.Error,
	}, s.logger)
}

func (s *Server) handleRouterStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.classifier.Stats(), s.logger)
}

func (s *Server) handleRouterAudit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, s.classifier.Recent(50), s.logger)
}

// newID returns a time-ordered unique id, falling back to random when
// V7 generation fails.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
