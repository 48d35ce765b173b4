package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coldwatch/coldwatch/internal/agent"
)

// sseWriteDeadline is reset after every event so long tool loops do not
// trip the connection's write timeout.
const sseWriteDeadline = 120 * time.Second

// streamEvents relays an agent event stream as Server-Sent Events:
// one "event: <type>" / "data: <json>" pair per stream element. The
// stream ends when the agent emits done and closes the channel, or
// when the client disconnects.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request, sessionID string, stream <-chan agent.StreamEvent) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.errorResponse(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	flusher.Flush()

	rc := http.NewResponseController(w)

	for {
		select {
		case ev, open := <-stream:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				s.logger.Debug("SSE write failed, client gone", "session_id", sessionID, "error", err)
				return
			}
			flusher.Flush()
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteDeadline)); err != nil {
				s.logger.Debug("failed to reset write deadline", "error", err)
			}

		case <-r.Context().Done():
			// Client disconnected. Context cancellation propagates to
			// the in-flight completion and tool calls; the buffered
			// stream absorbs the terminal events.
			s.logger.Debug("SSE client disconnected", "session_id", sessionID)
			return
		}
	}
}

func writeSSE(w http.ResponseWriter, ev agent.StreamEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal SSE event: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}
