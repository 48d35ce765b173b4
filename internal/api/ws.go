package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsEventBuffer  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The firehose is an operator tool on a trusted network; browser
	// origin checks would only get in the way of local dashboards.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEventsWS upgrades to a WebSocket and relays the operational
// event bus to the client as JSON frames. Slow clients miss events
// rather than backing up publishers.
// GET /ws/events
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s.bus == nil {
		s.errorResponse(w, http.StatusNotFound, "event bus not enabled")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sub := s.bus.Subscribe(wsEventBuffer)
	defer s.bus.Unsubscribe(sub)

	s.logger.Info("event firehose client connected", "remote", r.RemoteAddr)

	// Reader goroutine: we never expect frames from the client, but the
	// read pump is what surfaces close frames and dead connections.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event firehose write failed", "error", err)
				return
			}

		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-done:
			s.logger.Debug("event firehose client disconnected", "remote", r.RemoteAddr)
			return

		case <-r.Context().Done():
			return
		}
	}
}
