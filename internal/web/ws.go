package web

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vitos/token_staking/internal/domain"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	streamBuffer   = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage wraps an event payload with its type for clients.
type streamMessage struct {
	Type    domain.EventType `json:"type"`
	Subject string           `json:"subject"`
	Payload json.RawMessage  `json:"payload"`
}

// handleEventStream pushes every committed event to the client until it
// disconnects. An optional ?address= narrows the stream to one subject.
func (s *Server) handleEventStream(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("address")
	if filter != "" {
		if _, err := pathAddressValue(filter); err != nil {
			s.writeError(w, err)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Failed to upgrade websocket", zap.Error(err))
		return
	}

	events, unsubscribe := s.events.SubscribeChan(streamBuffer)
	done := make(chan struct{})
	go s.readPump(conn, done)
	s.writePump(conn, events, filter, done)
	unsubscribe()
}

// readPump discards client messages and closes done once the peer is gone.
func (s *Server) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("Websocket closed", zap.Error(err))
			}
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, events <-chan domain.Event, filter string, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if filter != "" && !sameAddress(evt.Subject().Hex(), filter) {
				continue
			}
			payload, err := json.Marshal(evt)
			if err != nil {
				s.logger.Error("Failed to encode event", zap.Error(err))
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(streamMessage{Type: evt.Type(), Subject: evt.Subject().Hex(), Payload: payload}); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
