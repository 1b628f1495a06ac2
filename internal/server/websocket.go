package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ciciliostudio/probe/internal/chat"
	"github.com/ciciliostudio/probe/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local tool, no cross-origin concerns
	},
}

// wsRequest is an incoming client frame on the chat socket.
type wsRequest struct {
	Type      string `json:"type"` // "chat"
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

// streamPublisher forwards progress events to the WebSocket as they are
// emitted. gorilla connections allow one concurrent writer, hence the
// mutex shared with the final-response write. A failed write means the
// client is gone, so it cancels the turn context.
type streamPublisher struct {
	conn   *websocket.Conn
	mu     *sync.Mutex
	cancel context.CancelFunc
}

func (p *streamPublisher) Emit(event chat.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.WriteJSON(event); err != nil {
		logging.Debug("WebSocket event write failed: %v", err)
		p.cancel()
	}
}

// handleWebSocket runs the streaming chat protocol: the client sends chat
// frames, the server streams progress events and a final response per turn.
// Closing the socket cancels the remaining actions of an in-flight turn.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// The request context dies after the upgrade; turns get their own.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var writeMu sync.Mutex
	writeMu.Lock()
	err = conn.WriteJSON(map[string]interface{}{
		"type":      "connection",
		"message":   "connected",
		"timestamp": time.Now().UTC(),
	})
	writeMu.Unlock()
	if err != nil {
		return
	}

	logging.Info("WebSocket chat connection from %s", r.RemoteAddr)

	// Reads run on their own goroutine so a close arriving mid-turn cancels
	// the turn context immediately instead of after the turn completes.
	frames := make(chan wsRequest)
	go func() {
		defer close(frames)
		for {
			var req wsRequest
			if err := conn.ReadJSON(&req); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logging.Warn("WebSocket read error: %v", err)
				}
				// Abandon whatever turn is still running.
				cancel()
				return
			}
			select {
			case frames <- req:
			case <-ctx.Done():
				return
			}
		}
	}()

	for req := range frames {
		if req.Type != "chat" {
			writeMu.Lock()
			conn.WriteJSON(map[string]string{"type": "error", "error": "unsupported message type: " + req.Type})
			writeMu.Unlock()
			continue
		}

		pub := &streamPublisher{conn: conn, mu: &writeMu, cancel: cancel}
		out, err := s.orchestrator.ProcessMessageWith(ctx, chat.TurnInput{
			Message:   req.Message,
			SessionID: req.SessionID,
		}, pub)
		if err != nil {
			writeMu.Lock()
			conn.WriteJSON(map[string]string{"type": "error", "error": err.Error()})
			writeMu.Unlock()
			continue
		}

		writeMu.Lock()
		err = conn.WriteJSON(map[string]interface{}{
			"type":      "response",
			"timestamp": time.Now().UTC(),
			"response":  out,
		})
		writeMu.Unlock()
		if err != nil {
			cancel()
			return
		}
	}
}
