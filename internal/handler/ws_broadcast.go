package handler

// BroadcastUserEvent implements service.Broadcaster using the WebSocket hub.
func (h *Hub) BroadcastUserEvent(userID string, eventType string, data any) {
	h.BroadcastToUser(userID, WSEvent{Type: eventType, Data: data})
}
