package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/vendetta/api/internal/auth"
)

const (
	writeWait   = 10 * time.Second
	pongWait    = 60 * time.Second
	pingPeriod  = pongWait * 9 / 10
	maxMsgSize  = 1024
	sendBufSize = 64

	actionAdvance = "advance"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin policy lives in the CORS middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// WSHandler upgrades authenticated players to a socket that receives their
// engine events.
type WSHandler struct {
	hub    *Hub
	jwtMgr *auth.JWTManager
	state  StateService
}

func NewWSHandler(hub *Hub, jwtMgr *auth.JWTManager, state StateService) *WSHandler {
	return &WSHandler{hub: hub, jwtMgr: jwtMgr, state: state}
}

// ServeWS handles GET /api/v1/ws. Browsers cannot set headers on the upgrade,
// so the token may also come as ?token=.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	claims, err := h.jwtMgr.ValidateToken(auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("userId", claims.UserID).Msg("WebSocket upgrade failed")
		return
	}

	c := &WSConn{conn: conn, userID: claims.UserID, send: make(chan []byte, sendBufSize)}
	h.hub.Register(c)
	h.hub.BroadcastToUser(c.userID, WSEvent{Type: EventConnected, Data: map[string]string{"userId": c.userID}})

	go h.writeLoop(c)
	go h.readLoop(c)

	log.Info().Str("userId", c.userID).Int("sockets", h.hub.ConnectionCount()).Msg("WebSocket client connected")
}

// readLoop handles client actions until the socket fails, then unregisters.
func (h *WSHandler) readLoop(c *WSConn) {
	defer func() {
		if h.hub.Unregister(c) {
			log.Info().Str("userId", c.userID).Msg("WebSocket client disconnected")
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if _, bad := err.(*json.SyntaxError); bad {
				h.hub.BroadcastToUser(c.userID, WSEvent{Type: EventError, Data: map[string]string{"error": "malformed message"}})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("userId", c.userID).Msg("WebSocket closed unexpectedly")
			}
			return
		}
		switch msg.Action {
		case actionAdvance:
			h.advance(c.userID)
		default:
			h.hub.BroadcastToUser(c.userID, WSEvent{Type: EventError, Data: map[string]string{"error": "unknown action " + msg.Action}})
		}
	}
}

// advance brings the player up to date and pushes the fresh state to all of
// their sockets. Failures go back to the player as an error event.
func (h *WSHandler) advance(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()
	st, err := h.state.Advance(ctx, userID)
	if err != nil {
		log.Warn().Err(err).Str("userId", userID).Msg("WebSocket advance failed")
		h.hub.BroadcastToUser(userID, WSEvent{Type: EventError, Data: map[string]string{"error": err.Error()}})
		return
	}
	h.hub.BroadcastToUser(userID, WSEvent{Type: EventState, Data: st})
}

// writeLoop sends one frame per event and pings to keep the socket alive.
func (h *WSHandler) writeLoop(c *WSConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, open := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !open {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.hub.Unregister(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.hub.Unregister(c)
				return
			}
		}
	}
}
