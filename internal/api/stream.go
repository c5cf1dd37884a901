package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/nugget/sherpa-ai-agent/internal/agent"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
	// The API serves local frontends during development, so origin is
	// not restricted here. Run behind a reverse proxy for anything else.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamFrame is one WebSocket message sent during an agent run.
// Type is "step" while the loop is working, "answer" when it finishes,
// or "error" when the run fails.
type streamFrame struct {
	Type      string        `json:"type"`
	Step      *agent.Record `json:"step,omitempty"`
	Answer    string        `json:"answer,omitempty"`
	Error     string        `json:"error,omitempty"`
	SessionID string        `json:"session_id,omitempty"`
}

// handleChatStream runs the agent loop over a WebSocket, pushing each
// step as it happens and the final answer as the last frame.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		s.errorResponse(w, http.StatusBadRequest, "missing query")
		return
	}
	sessionID := r.URL.Query().Get("session_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	onStep := func(rec agent.Record) {
		if err := conn.WriteJSON(streamFrame{Type: "step", Step: &rec}); err != nil {
			s.logger.Debug("failed to write step frame", "error", err)
		}
	}

	result, err := s.loop.Run(r.Context(), query, sessionID, onStep)
	if err != nil {
		if werr := conn.WriteJSON(streamFrame{Type: "error", Error: err.Error()}); werr != nil {
			s.logger.Debug("failed to write error frame", "error", werr)
		}
		return
	}

	if err := conn.WriteJSON(streamFrame{
		Type:      "answer",
		Answer:    result.Answer,
		SessionID: result.SessionID,
	}); err != nil {
		s.logger.Debug("failed to write answer frame", "error", err)
	}
}
