package handler

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Event types that originate in the handler layer. Engine events are defined
// in the service package.
const (
	EventConnected = "connected"
	EventState     = "state"
	EventError     = "error"
)

// WSEvent is the envelope for all WebSocket messages.
type WSEvent struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// ClientMessage is what a client may send: {"action":"advance"}.
type ClientMessage struct {
	Action string `json:"action"`
}

// WSConn is one socket of a user. send is closed by the hub on unregister.
type WSConn struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// Hub fans engine events out to the sockets of each user.
type Hub struct {
	mu    sync.RWMutex
	users map[string]map[*WSConn]struct{}
	total int
}

func NewHub() *Hub {
	return &Hub{users: make(map[string]map[*WSConn]struct{})}
}

func (h *Hub) Register(c *WSConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.users[c.userID]
	if !ok {
		set = make(map[*WSConn]struct{})
		h.users[c.userID] = set
	}
	if _, dup := set[c]; !dup {
		set[c] = struct{}{}
		h.total++
	}
}

// Unregister drops c and closes its send channel. It reports whether c was
// still registered, so a second call is a no-op.
func (h *Hub) Unregister(c *WSConn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.users[c.userID]
	if _, ok := set[c]; !ok {
		return false
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.userID)
	}
	h.total--
	close(c.send)
	return true
}

// BroadcastToUser queues event on every socket of userID. A socket whose
// buffer is full misses the event; the engine never waits on a client.
func (h *Hub) BroadcastToUser(userID string, event WSEvent) {
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("userId", userID).Str("type", event.Type).Msg("Failed to encode event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.users[userID] {
		select {
		case c.send <- payload:
		default:
			log.Warn().Str("userId", userID).Str("type", event.Type).Msg("Socket buffer full, event dropped")
		}
	}
}

// ConnectionCount is the number of open sockets across all users.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

func (h *Hub) UserConnectionCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}
