// Package hub fans auction snapshots out to websocket subscribers.
// Commands never arrive on the socket; it is a one-way feed and the
// HTTP API stays the only write path.
package hub

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// sendBuffer bounds the per-client queue; a client that cannot keep
	// up is dropped rather than allowed to stall the broadcast.
	sendBuffer = 32
)

// Hub tracks the subscribers of every room.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]map[*client]struct{}
	logger *slog.Logger

	upgrader websocket.Upgrader
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// New returns an empty hub.
func New(logger *slog.Logger) *Hub {
	return &Hub{
		rooms:  map[string]map[*client]struct{}{},
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Subscribe upgrades the request to a websocket and streams the room's
// updates until the client disconnects.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, roomID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}

	h.mu.Lock()
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = map[*client]struct{}{}
	}
	h.rooms[roomID][c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(roomID, c)
	go h.readPump(roomID, c)
	return nil
}

// Broadcast serializes v and queues it for every subscriber of the room.
func (h *Hub) Broadcast(roomID string, v any) {
	payload, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("marshaling broadcast", slog.Any("error", err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[roomID] {
		select {
		case c.send <- payload:
		default:
			// Slow consumer; closing send makes its writePump exit.
			h.dropLocked(roomID, c)
		}
	}
}

// Count returns the number of subscribers of a room.
func (h *Hub) Count(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}

func (h *Hub) drop(roomID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(roomID, c)
}

func (h *Hub) dropLocked(roomID string, c *client) {
	if _, ok := h.rooms[roomID][c]; !ok {
		return
	}
	delete(h.rooms[roomID], c)
	if len(h.rooms[roomID]) == 0 {
		delete(h.rooms, roomID)
	}
	close(c.send)
}

// readPump discards inbound frames and notices disconnects.
func (h *Hub) readPump(roomID string, c *client) {
	defer func() {
		h.drop(roomID, c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(roomID string, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.drop(roomID, c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.drop(roomID, c)
				return
			}
		}
	}
}
