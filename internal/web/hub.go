package web

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"gridrun/internal/launch"
	"gridrun/internal/logging"
)

// wsHub fans launcher events out to every connected WebSocket client.
type wsHub struct {
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	register  chan *websocket.Conn
	remove    chan *websocket.Conn
	broadcast chan []byte
	done      chan struct{}
	closeOnce sync.Once
	log       *logging.Logger
}

func newHub(log *logging.Logger) *wsHub {
	hub := &wsHub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		register:  make(chan *websocket.Conn),
		remove:    make(chan *websocket.Conn),
		broadcast: make(chan []byte, 16),
		done:      make(chan struct{}),
		log:       log,
	}
	go hub.run()
	return hub
}

func (h *wsHub) run() {
	for {
		select {
		case <-h.done:
			for conn := range h.clients {
				conn.Close()
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
		case conn := <-h.remove:
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					h.log.Warnf("failed to send event to WebSocket client: %v", err)
					delete(h.clients, conn)
					conn.Close()
				}
			}
		}
	}
}

// close stops the hub loop and disconnects every client. Safe to call more
// than once.
func (h *wsHub) close() {
	h.closeOnce.Do(func() { close(h.done) })
}

func (h *wsHub) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}

	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return
	}

	// The feed is one-way; the read loop only notices disconnects.
	go func() {
		defer func() {
			select {
			case h.remove <- conn:
			case <-h.done:
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.log.Warnf("WebSocket error: %v", err)
				}
				break
			}
		}
	}()
}

func (h *wsHub) broadcastEvent(event launch.RunEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		h.log.Errorf("failed to marshal run event: %v", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// A stalled hub must never block the launcher.
	}
}
