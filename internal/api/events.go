package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/cortezalberto/coderunner1/internal/playground"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventMessage is one frame of the event stream.
// Server frames: "state" (Data holds a snapshot), "pong".
// Client frames: "visibility" (Hidden set), "ping".
type EventMessage struct {
	Type   string               `json:"type"`
	Data   *playground.Snapshot `json:"data,omitempty"`
	Hidden bool                 `json:"hidden,omitempty"`
}

func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	logger := LoggerFromContext(r.Context())

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer conn.Close()

	subID, updates, unsubscribe := s.session.Subscribe()
	defer unsubscribe()

	logger = logger.With("subscriber_id", subID)
	logger.Info("event stream connected")

	// writes come from both goroutines
	var writeMu sync.Mutex
	send := func(msg EventMessage) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return s.sendEventMessage(conn, msg)
	}

	initial := s.session.Snapshot()
	if err := send(EventMessage{Type: "state", Data: &initial}); err != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	// Session -> WebSocket
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case snap, ok := <-updates:
				if !ok {
					writeMu.Lock()
					conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
					writeMu.Unlock()
					return
				}
				if err := send(EventMessage{Type: "state", Data: &snap}); err != nil {
					return
				}
			}
		}
	}()

	// WebSocket -> Session
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error", "error", err)
				}
				return
			}

			var msg EventMessage
			if err := json.Unmarshal(message, &msg); err != nil {
				logger.Debug("invalid message format", "error", err)
				continue
			}

			switch msg.Type {
			case "visibility":
				s.session.VisibilityChanged(msg.Hidden, s.now())
			case "ping":
				if err := send(EventMessage{Type: "pong"}); err != nil {
					return
				}
			}
		}
	}()

	<-ctx.Done()
	// unblock the reader
	conn.Close()
	wg.Wait()
	logger.Info("event stream disconnected")
}

func (s *Server) sendEventMessage(conn *websocket.Conn, msg EventMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
