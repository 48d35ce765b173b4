package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coldwatch/coldwatch/internal/agent"
	"github.com/coldwatch/coldwatch/internal/session"
)

type stubAgent struct {
	mu          sync.Mutex
	lastSession string
	lastMessage string
	res         *agent.Result
	err         error
}

func (s *stubAgent) Handle(ctx context.Context, sessionID, message string) (*agent.Result, error) {
	s.mu.Lock()
	s.lastSession = sessionID
	s.lastMessage = message
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

// streamResult builds a Result whose channel replays the given events
// and then closes, the way the agent's emitter terminates a stream.
func streamResult(evs ...agent.StreamEvent) *agent.Result {
	ch := make(chan agent.StreamEvent, len(evs))
	for _, ev := range evs {
		ch <- ev
	}
	close(ch)
	return &agent.Result{Events: ch}
}

func newTestServer(stub *stubAgent) *Server {
	return NewServer("127.0.0.1", 0, stub, nil)
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestChatStreamsSSE(t *testing.T) {
	stub := &stubAgent{res: streamResult(
		agent.StreamEvent{Type: agent.EventText, Content: "All zones nominal."},
		agent.StreamEvent{Type: agent.EventDone},
	)}
	srv := newTestServer(stub)

	rec := postJSON(t, srv.Handler(), "/api/agent/chat", `{"message":"status?","session_id":"s1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: text\n") {
		t.Errorf("body missing text event:\n%s", body)
	}
	if !strings.Contains(body, `"content":"All zones nominal."`) {
		t.Errorf("body missing content payload:\n%s", body)
	}
	if !strings.Contains(body, "event: done\n") {
		t.Errorf("body missing done event:\n%s", body)
	}
	if strings.Index(body, "event: done") < strings.Index(body, "event: text") {
		t.Error("done event precedes text event")
	}
	if stub.lastSession != "s1" || stub.lastMessage != "status?" {
		t.Errorf("dispatched session=%q message=%q", stub.lastSession, stub.lastMessage)
	}
}

func TestChatStaticResponse(t *testing.T) {
	stub := &stubAgent{res: &agent.Result{Static: "I can answer questions about the facility."}}
	srv := newTestServer(stub)

	rec := postJSON(t, srv.Handler(), "/api/agent/chat", `{"message":"help"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp StaticChatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Response == "" {
		t.Error("empty static response")
	}
	// A fresh session ID is minted when the client sends none.
	if resp.SessionID == "" {
		t.Error("missing session_id")
	}
}

func TestChatSessionBusy(t *testing.T) {
	stub := &stubAgent{err: session.ErrSessionBusy}
	srv := newTestServer(stub)

	rec := postJSON(t, srv.Handler(), "/api/agent/chat", `{"message":"hi","session_id":"s1"}`)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "busy") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestChatValidation(t *testing.T) {
	srv := newTestServer(&stubAgent{})

	tests := []struct {
		name string
		body string
	}{
		{"empty message", `{"message":""}`},
		{"broken json", `{"message":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, srv.Handler(), "/api/agent/chat", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestIdeasSynchronousJSON(t *testing.T) {
	stub := &stubAgent{res: streamResult(
		agent.StreamEvent{Type: agent.EventProgress, Stage: "ideating"},
		agent.StreamEvent{Type: agent.EventIdeas, Ideas: []session.Idea{
			{ID: "i1", Title: "A", Description: "d"},
			{ID: "i2", Title: "B", Description: "d"},
		}},
		agent.StreamEvent{Type: agent.EventDone},
	)}
	srv := newTestServer(stub)

	rec := postJSON(t, srv.Handler(), "/api/agent/ideas", `{"session_id":"s1"}`)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if stub.lastMessage != `{"type":"request_ideas"}` {
		t.Errorf("dispatched message = %q", stub.lastMessage)
	}

	var resp IdeasResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Ideas) != 2 || resp.Ideas[0].ID != "i1" {
		t.Errorf("ideas = %+v", resp.Ideas)
	}
}

func TestVisualizeSynchronousJSON(t *testing.T) {
	spec := &session.VisualizationSpec{Type: "trend", Title: "Trend", Code: "<LineChart />", IdeaID: "trend-1"}
	stub := &stubAgent{res: streamResult(
		agent.StreamEvent{Type: agent.EventProgress, Stage: "generating"},
		agent.StreamEvent{Type: agent.EventVisualization, Spec: spec, IdeaID: "trend-1", Title: "Trend"},
		agent.StreamEvent{Type: agent.EventDone},
	)}
	srv := newTestServer(stub)

	body := `{"session_id":"s1","idea":{"id":"trend-1","title":"Trend","description":"d"}}`
	rec := postJSON(t, srv.Handler(), "/api/agent/visualize", body)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Type string       `json:"type"`
		Idea session.Idea `json:"idea"`
	}
	if err := json.Unmarshal([]byte(stub.lastMessage), &env); err != nil {
		t.Fatalf("dispatched message not an envelope: %q", stub.lastMessage)
	}
	if env.Type != "generate_viz" || env.Idea.ID != "trend-1" {
		t.Errorf("envelope = %+v", env)
	}

	var resp VisualizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.IdeaID != "trend-1" || resp.Spec == nil || resp.Spec.Code != "<LineChart />" {
		t.Errorf("response = %+v", resp)
	}
}

func TestVisualizeFailureMapsTo400(t *testing.T) {
	stub := &stubAgent{res: streamResult(
		agent.StreamEvent{Type: agent.EventError, Message: "No visualization idea selected"},
		agent.StreamEvent{Type: agent.EventDone},
	)}
	srv := newTestServer(stub)

	rec := postJSON(t, srv.Handler(), "/api/agent/visualize", `{"session_id":"s1","idea":{}}`)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "No visualization idea selected") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

type stubTranscripts struct {
	turns []session.ArchivedTurn
	err   error
}

func (s *stubTranscripts) Transcript(sessionID string) ([]session.ArchivedTurn, error) {
	return s.turns, s.err
}

func TestTranscriptJSON(t *testing.T) {
	srv := newTestServer(&stubAgent{})
	srv.SetTranscripts(&stubTranscripts{turns: []session.ArchivedTurn{
		{Role: "user", Content: "how cold?", CreatedAt: time.Now()},
		{Role: "assistant", Content: "Cold Room A is **3.2°C**.", CreatedAt: time.Now()},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/transcript", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		SessionID string           `json:"session_id"`
		Turns     []TranscriptTurn `json:"turns"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.SessionID != "s1" || len(resp.Turns) != 2 {
		t.Errorf("response = %+v", resp)
	}
}

func TestTranscriptHTML(t *testing.T) {
	srv := newTestServer(&stubAgent{})
	srv.SetTranscripts(&stubTranscripts{turns: []session.ArchivedTurn{
		{Role: "user", Content: "how cold?", CreatedAt: time.Now()},
		{Role: "tool", Content: `{"data":[]}`, ToolName: "query_sensor_data", CreatedAt: time.Now()},
		{Role: "assistant", Content: "Cold Room A is **3.2°C**.", CreatedAt: time.Now()},
	}})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/transcript?format=html", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<strong>3.2°C</strong>") {
		t.Errorf("markdown not rendered:\n%s", body)
	}
	if strings.Contains(body, "query_sensor_data") {
		t.Error("tool turn leaked into HTML transcript")
	}
}

func TestTranscriptNotConfigured(t *testing.T) {
	srv := newTestServer(&stubAgent{})

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/s1/transcript", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(&stubAgent{})
	h := srv.Handler()

	for _, path := range []string{"/healthz", "/version", "/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}
