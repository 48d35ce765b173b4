// Package api implements the HTTP surface: agent endpoints streaming
// Server-Sent Events, session transcripts, and a WebSocket firehose of
// operational events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/coldwatch/coldwatch/internal/agent"
	"github.com/coldwatch/coldwatch/internal/buildinfo"
	"github.com/coldwatch/coldwatch/internal/events"
	"github.com/coldwatch/coldwatch/internal/session"
)

// Handler is the agent surface the server dispatches to. Satisfied by
// *agent.Agent.
type Handler interface {
	Handle(ctx context.Context, sessionID, message string) (*agent.Result, error)
}

// Transcripts reads back journaled session turns. Satisfied by
// *session.Archive.
type Transcripts interface {
	Transcript(sessionID string) ([]session.ArchivedTurn, error)
}

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	address     string
	port        int
	agent       Handler
	transcripts Transcripts
	bus         *events.Bus
	logger      *slog.Logger
	server      *http.Server
}

// NewServer creates a new API server.
func NewServer(address string, port int, h Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		address: address,
		port:    port,
		agent:   h,
		logger:  logger,
	}
}

// SetTranscripts configures the archive for the transcript endpoint.
func (s *Server) SetTranscripts(t Transcripts) {
	s.transcripts = t
}

// SetBus configures the event bus for the WebSocket firehose.
func (s *Server) SetBus(b *events.Bus) {
	s.bus = b
}

// Handler builds the route table. Exposed for tests; Start wraps it
// with logging middleware and serves it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent endpoints
	mux.HandleFunc("POST /api/agent/chat", s.handleChat)
	mux.HandleFunc("POST /api/agent/ideas", s.handleIdeas)
	mux.HandleFunc("POST /api/agent/visualize", s.handleVisualize)

	// Session transcripts
	mux.HandleFunc("GET /api/sessions/{id}/transcript", s.handleTranscript)

	// Operational event firehose
	mux.HandleFunc("GET /ws/events", s.handleEventsWS)

	// Health endpoints
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /", s.handleRoot)

	return mux
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:     s.withLogging(s.Handler()),
		ReadTimeout: 30 * time.Second,
		// No WriteTimeout: SSE streams and the WebSocket firehose are
		// long-lived; per-write deadlines are managed in the handlers.
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

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "Coldwatch",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

// ChatRequest is the body for the agent endpoints. SessionID is
// optional; a fresh session is created when it is empty.
type ChatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// StaticChatResponse is the synchronous (non-streaming) reply shape,
// used when the agent answers without opening a stream.
type StaticChatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

// handleChat dispatches a free-text message and streams the agent's
// events as SSE. The reserved help message is answered synchronously
// as JSON.
// POST /api/agent/chat {"message": "how cold is Cold Room B?"}
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		s.errorResponse(w, http.StatusBadRequest, "message is required")
		return
	}
	s.dispatch(w, r, req.SessionID, req.Message)
}

// IdeasRequest is the body for the ideation endpoint.
type IdeasRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// IdeasResponse is the synchronous ideation result.
type IdeasResponse struct {
	SessionID string         `json:"session_id"`
	Ideas     []session.Idea `json:"ideas"`
}

// handleIdeas requests visualization suggestions for a session. Unlike
// chat, the result is a single JSON document: the stream is drained
// server-side and only the idea set is returned.
// POST /api/agent/ideas {"session_id": "abc"}
func (s *Server) handleIdeas(w http.ResponseWriter, r *http.Request) {
	var req IdeasRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, sessionID, ok := s.invoke(w, r, req.SessionID, `{"type":"request_ideas"}`)
	if !ok {
		return
	}

	ideas := []session.Idea{}
	for ev := range res.Events {
		if ev.Type == agent.EventIdeas {
			ideas = ev.Ideas
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, IdeasResponse{SessionID: sessionID, Ideas: ideas}, s.logger)
}

// VisualizeRequest is the body for the generation endpoint. The idea
// may be a full idea object or just {"id": "..."} referencing a cached
// suggestion from a prior ideation run.
type VisualizeRequest struct {
	SessionID string       `json:"session_id,omitempty"`
	Idea      session.Idea `json:"idea"`
}

// VisualizeResponse is the synchronous generation result.
type VisualizeResponse struct {
	SessionID string                     `json:"session_id"`
	IdeaID    string                     `json:"idea_id"`
	Title     string                     `json:"title"`
	Spec      *session.VisualizationSpec `json:"spec"`
}

// handleVisualize generates a visualization from an idea and returns
// the finished spec as JSON. A generation failure (invalid code, no
// idea selected) maps to 400 with the agent's error message.
// POST /api/agent/visualize {"session_id": "abc", "idea": {...}}
func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req VisualizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	envelope, err := json.Marshal(map[string]any{
		"type": "generate_viz",
		"idea": req.Idea,
	})
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid idea")
		return
	}

	res, sessionID, ok := s.invoke(w, r, req.SessionID, string(envelope))
	if !ok {
		return
	}

	var viz *agent.StreamEvent
	var errMsg string
	for ev := range res.Events {
		switch ev.Type {
		case agent.EventVisualization:
			v := ev
			viz = &v
		case agent.EventError:
			errMsg = ev.Message
		}
	}

	if viz == nil {
		if errMsg == "" {
			errMsg = "no visualization generated"
		}
		s.errorResponse(w, http.StatusBadRequest, errMsg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, VisualizeResponse{
		SessionID: sessionID,
		IdeaID:    viz.IdeaID,
		Title:     viz.Title,
		Spec:      viz.Spec,
	}, s.logger)
}

// dispatch runs one agent request and renders the result: a JSON body
// for synchronous answers, an SSE stream otherwise.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, sessionID, message string) {
	res, sessionID, ok := s.invoke(w, r, sessionID, message)
	if !ok {
		return
	}

	if res.Static != "" {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, StaticChatResponse{Response: res.Static, SessionID: sessionID}, s.logger)
		return
	}

	s.bus.Publish(events.Event{
		Source: events.SourceAPI,
		Kind:   events.KindStreamOpen,
		Data:   map[string]any{"session_id": sessionID},
	})
	s.streamEvents(w, r, sessionID, res.Events)
}

// invoke dispatches one message to the agent, mapping a busy session to
// 409 before any response body is written. The returned session ID is
// freshly minted when the client sent none.
func (s *Server) invoke(w http.ResponseWriter, r *http.Request, sessionID, message string) (*agent.Result, string, bool) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	res, err := s.agent.Handle(r.Context(), sessionID, message)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			s.errorResponse(w, http.StatusConflict, "session is busy with another request")
			return nil, "", false
		}
		s.logger.Error("agent dispatch failed", "session_id", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "agent error")
		return nil, "", false
	}
	return res, sessionID, true
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
