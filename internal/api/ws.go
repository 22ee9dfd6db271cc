package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tuxhw/tuxd/internal/services/pubsub"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for WebSocket
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// wsMessage wraps a streamed payload with its topic.
type wsMessage struct {
	Topic   string      `json:"topic"`
	Payload interface{} `json:"payload"`
}

// handleStatusStream upgrades the connection and forwards status and fan
// updates until the client goes away.
func (s *Server) handleStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("api: websocket upgrade: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	statusSub := s.bus.Subscribe(pubsub.TopicStatus, 16)
	defer s.bus.Unsubscribe(statusSub)
	fanSub := s.bus.Subscribe(pubsub.TopicFanUpdate, 16)
	defer s.bus.Unsubscribe(fanSub)

	// Reader goroutine: we never expect client messages, but reading is
	// what surfaces the close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(topic pubsub.Topic, payload interface{}) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(wsMessage{Topic: string(topic), Payload: payload}); err != nil {
			return false
		}
		return true
	}

	// Initial snapshot so clients render without waiting for a change.
	if !send(pubsub.TopicStatus, s.statusPayload()) {
		return
	}

	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-closed:
			return
		case msg, ok := <-statusSub.Channel:
			if !ok || !send(pubsub.TopicStatus, msg) {
				return
			}
		case msg, ok := <-fanSub.Channel:
			if !ok || !send(pubsub.TopicFanUpdate, msg) {
				return
			}
		case <-pingTicker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
