package api

import (
	"bytes"
	"fmt"
	"html"
	"net/http"
	"time"

	"github.com/yuin/goldmark"

	"github.com/coldwatch/coldwatch/internal/session"
)

// TranscriptTurn is one archived turn as served to clients.
type TranscriptTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	ToolName  string    `json:"tool_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// handleTranscript serves a session's journaled turns. The default is
// JSON; ?format=html renders conversational markdown for review in a
// browser. Tool turns carry raw payloads and are skipped in HTML.
// GET /api/sessions/{id}/transcript
func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		s.errorResponse(w, http.StatusNotFound, "transcripts not enabled")
		return
	}

	sessionID := r.PathValue("id")
	turns, err := s.transcripts.Transcript(sessionID)
	if err != nil {
		s.logger.Error("transcript read failed", "session_id", sessionID, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "transcript unavailable")
		return
	}

	if r.URL.Query().Get("format") == "html" {
		s.renderTranscriptHTML(w, sessionID, turns)
		return
	}

	out := make([]TranscriptTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, TranscriptTurn{
			Role:      t.Role,
			Content:   t.Content,
			ToolName:  t.ToolName,
			CreatedAt: t.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"session_id": sessionID,
		"turns":      out,
	}, s.logger)
}

func (s *Server) renderTranscriptHTML(w http.ResponseWriter, sessionID string, turns []session.ArchivedTurn) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "<!DOCTYPE html><html><head><title>Session %s</title></head><body>\n", html.EscapeString(sessionID))
	fmt.Fprintf(&buf, "<h1>Session %s</h1>\n", html.EscapeString(sessionID))

	for _, t := range turns {
		if t.Role == "tool" {
			continue
		}
		fmt.Fprintf(&buf, "<h3>%s <small>%s</small></h3>\n",
			html.EscapeString(t.Role), t.CreatedAt.UTC().Format(time.RFC3339))
		if err := goldmark.Convert([]byte(t.Content), &buf); err != nil {
			s.logger.Debug("markdown render failed, falling back to plain text", "error", err)
			fmt.Fprintf(&buf, "<pre>%s</pre>\n", html.EscapeString(t.Content))
		}
	}
	buf.WriteString("</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(buf.Bytes()); err != nil {
		s.logger.Debug("failed to write transcript", "error", err)
	}
}
