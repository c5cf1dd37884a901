package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nugget/sherpa-ai-agent/internal/agent"
	"github.com/nugget/sherpa-ai-agent/internal/chat"
	"github.com/nugget/sherpa-ai-agent/internal/checkpoint"
	"github.com/nugget/sherpa-ai-agent/internal/llm"
	"github.com/nugget/sherpa-ai-agent/internal/memory"
	"github.com/nugget/sherpa-ai-agent/internal/profile"
	"github.com/nugget/sherpa-ai-agent/internal/router"
	"github.com/nugget/sherpa-ai-agent/internal/tools"
	"github.com/nugget/sherpa-ai-agent/internal/trip"
)

type scriptedClient struct {
	replies []string
	calls   int
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions) (*llm.ChatResponse, error) {
	if c.calls >= len(c.replies) {
		return nil, fmt.Errorf("no scripted reply for call %d", c.calls)
	}
	reply := c.replies[c.calls]
	c.calls++
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: reply}, Done: true}, nil
}

func (c *scriptedClient) ChatStream(ctx context.Context, model string, messages []llm.Message, opts *llm.ChatOptions, callback llm.StreamCallback) (*llm.ChatResponse, error) {
	return c.Chat(ctx, model, messages, opts)
}

func (c *scriptedClient) Ping(ctx context.Context) error { return nil }

type serverFixture struct {
	server      *Server
	handler     http.Handler
	memory      *memory.Store
	checkpoints *checkpoint.Checkpointer
	profiles    *profile.Manager
	agentClient *scriptedClient
	soloClient  *scriptedClient
}

func newTestServer(t *testing.T) *serverFixture {
	t.Helper()

	f := &serverFixture{
		memory:      memory.NewStore(0),
		checkpoints: checkpoint.NewCheckpointer(nil, 0, nil),
		profiles:    profile.NewManager(profile.NewVolatile(), nil),
		agentClient: &scriptedClient{},
		soloClient:  &scriptedClient{},
	}

	chatClient := &scriptedClient{}
	travelClient := &scriptedClient{}

	loop := agent.NewLoop(nil, f.agentClient, "test-model", f.memory, tools.NewRegistry(), 0)
	chatSvc := chat.NewService(nil, chatClient, "test-model", f.checkpoints, f.profiles)
	solo := trip.NewSoloPlanner(nil, f.soloClient, "test-model", nil, trip.NewRunStore(nil, nil))
	travel := trip.NewTravelPlanner(nil, travelClient, "test-model", nil, trip.NewRunStore(nil, nil))
	classifier := router.NewClassifier(nil, f.checkpoints)
	dispatcher := router.NewDispatcher(nil, classifier, loop, chatSvc, solo, travel,
		tools.NewWeatherWithURL("http://127.0.0.1:0"), f.checkpoints)

	s := NewServer("127.0.0.1", 0, nil)
	s.SetAgent(loop, f.memory)
	s.SetChat(chatSvc, f.checkpoints, f.profiles)
	s.SetSmartChat(dispatcher, classifier)
	s.SetPlanners(solo, travel)

	f.server = s
	f.handler = s.Handler()
	return f
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func errMessage(t *testing.T, body map[string]any) string {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected error object, got %v", body)
	}
	msg, _ := errObj["message"].(string)
	return msg
}

func TestRootAndHealth(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodGet, "/", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("root status = %d", rec.Code)
	}
	if body["name"] != "Sherpa" || body["status"] != "ok" {
		t.Errorf("unexpected root body: %v", body)
	}

	rec, body = doJSON(t, f.handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("health = %d %v", rec.Code, body)
	}
}

func TestWebSearchValidation(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/web-search", map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if msg := errMessage(t, body); msg != "missing query" {
		t.Errorf("error message = %q", msg)
	}
}

func TestWebSearchRuns(t *testing.T) {
	f := newTestServer(t)
	f.agentClient.replies = []string{`{"step": "output", "content": "The answer is 42."}`}

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/web-search",
		map[string]string{"query": "what is the answer"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["answer"] != "The answer is 42." {
		t.Errorf("answer = %v", body["answer"])
	}
	if body["session_id"] != agent.DefaultSessionID {
		t.Errorf("session_id = %v", body["session_id"])
	}
}

func TestResetMemoryDefaultsSession(t *testing.T) {
	f := newTestServer(t)
	f.memory.AddTurn(agent.DefaultSessionID, "hi", "hello")

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/reset-memory", map[string]string{})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["status"] != "cleared" || body["session_id"] != agent.DefaultSessionID {
		t.Errorf("unexpected body: %v", body)
	}
	if got := f.memory.Messages(agent.DefaultSessionID); len(got) != 0 {
		t.Errorf("memory not cleared, %d messages remain", len(got))
	}
}

func TestChatHistoryLifecycle(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodGet, "/chat/history/t1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["message_count"] != float64(0) {
		t.Errorf("empty thread message_count = %v", body["message_count"])
	}

	state := checkpoint.NewState()
	state.Messages = append(state.Messages,
		checkpoint.Message{Role: "user", Content: "hi", Timestamp: time.Now()},
		checkpoint.Message{Role: "assistant", Content: "hello", Timestamp: time.Now()},
	)
	f.checkpoints.Save("t1", state)

	rec, body = doJSON(t, f.handler, http.MethodGet, "/chat/history/t1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body["message_count"] != float64(2) {
		t.Errorf("message_count = %v, want 2", body["message_count"])
	}

	rec, body = doJSON(t, f.handler, http.MethodDelete, "/chat/history/t1", nil)
	if rec.Code != http.StatusOK || body["deleted"] != true {
		t.Errorf("delete = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, f.handler, http.MethodDelete, "/chat/history/t1", nil)
	if body["deleted"] != false {
		t.Errorf("second delete reported %v", body["deleted"])
	}
}

func TestChatWithMemoryValidation(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodPost, "/chat/with-memory",
		map[string]string{"thread_id": "t1"})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "missing query" {
		t.Errorf("missing query = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, f.handler, http.MethodPost, "/chat/with-memory",
		map[string]string{"query": "hello"})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "missing thread_id" {
		t.Errorf("missing thread_id = %d %v", rec.Code, body)
	}
}

func TestMemoryEndpoints(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodGet, "/memory/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	if body["user_id"] != "alice" {
		t.Errorf("user_id = %v", body["user_id"])
	}
	prefs, _ := body["preferences"].(map[string]any)
	if prefs["language"] != "English" {
		t.Errorf("default language = %v", prefs["language"])
	}

	rec, body = doJSON(t, f.handler, http.MethodPost, "/memory/alice", map[string]any{
		"name":  "Alice",
		"facts": []string{"likes trains"},
	})
	if rec.Code != http.StatusOK || body["updated"] != true {
		t.Fatalf("update = %d %v", rec.Code, body)
	}
	mem, _ := body["memory"].(map[string]any)
	if mem["name"] != "Alice" {
		t.Errorf("merged name = %v", mem["name"])
	}

	rec, body = doJSON(t, f.handler, http.MethodDelete, "/memory/alice", nil)
	if rec.Code != http.StatusOK || body["cleared"] != true {
		t.Errorf("clear = %d %v", rec.Code, body)
	}
}

func TestSoloTripValidation(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/solo-trip/start", map[string]string{})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "query is required" {
		t.Errorf("start = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, f.handler, http.MethodPost, "/agent/solo-trip/resume",
		map[string]any{"preferences": map[string]any{"travel_mode": "train"}})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "thread_id is required" {
		t.Errorf("resume without thread = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, f.handler, http.MethodPost, "/agent/solo-trip/resume",
		map[string]any{"thread_id": "t1"})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "preferences are required" {
		t.Errorf("resume without preferences = %d %v", rec.Code, body)
	}
}

func TestSoloTripStartAwaitingInput(t *testing.T) {
	f := newTestServer(t)
	f.soloClient.replies = []string{
		`{"origin": "Delhi", "destination": "Manali"}`,
		"540",
		"Manali is a hill station in Himachal Pradesh.",
		"Transport options: road, bus, flight to Bhuntar.",
	}

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/solo-trip/start",
		map[string]string{"query": "solo trip from Delhi to Manali", "thread_id": "t9"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if body["success"] != true || body["status"] != trip.StatusAwaitingInput {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["thread_id"] != "t9" {
		t.Errorf("thread_id = %v", body["thread_id"])
	}
	if body["origin"] != "Delhi" || body["destination"] != "Manali" {
		t.Errorf("route = %v -> %v", body["origin"], body["destination"])
	}
	if body["distance_km"] != float64(540) {
		t.Errorf("distance_km = %v", body["distance_km"])
	}
	if _, ok := body["questions"].(map[string]any); !ok {
		t.Errorf("questions missing: %v", body["questions"])
	}
}

func TestSoloTripPackageNotFound(t *testing.T) {
	f := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/agent/solo-trip/package/missing", nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestTravelPlannerValidation(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/travel-planner", map[string]string{})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "missing query" {
		t.Errorf("travel planner = %d %v", rec.Code, body)
	}
}

func TestSmartChatValidation(t *testing.T) {
	f := newTestServer(t)

	rec, body := doJSON(t, f.handler, http.MethodPost, "/agent/smart-chat",
		map[string]string{"thread_id": "t1"})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "missing query" {
		t.Errorf("missing query = %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, f.handler, http.MethodPost, "/agent/smart-chat",
		map[string]string{"query": "hello"})
	if rec.Code != http.StatusBadRequest || errMessage(t, body) != "missing thread_id" {
		t.Errorf("missing thread_id = %d %v", rec.Code, body)
	}
}

func TestRouterStats(t *testing.T) {
	f := newTestServer(t)

	rec, _ := doJSON(t, f.handler, http.MethodGet, "/router/stats", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("stats status = %d", rec.Code)
	}
}
