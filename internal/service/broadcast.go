package service

// Event types pushed to connected clients.
const (
	EventQueueCompleted  = "queue_completed"
	EventBattleReport    = "battle_report"
	EventEspionageReport = "espionage_report"
	EventIncomingAttack  = "incoming_attack"
	EventMissionReturned = "mission_returned"
	EventTransport       = "transport_delivered"
	EventColonyFounded   = "colony_founded"
)

// Broadcaster sends real-time events to connected clients.
// Implemented by the WebSocket hub.
type Broadcaster interface {
	BroadcastUserEvent(userID string, eventType string, data any)
}

// NoopBroadcaster is a no-op implementation for testing or when WS is disabled.
type NoopBroadcaster struct{}

func (NoopBroadcaster) BroadcastUserEvent(string, string, any) {}

type event struct {
	userID string
	kind   string
	data   any
}

// outbox collects events during a transaction so they are only sent once it
// has committed.
type outbox struct {
	events []event
}

func (o *outbox) add(userID, kind string, data any) {
	o.events = append(o.events, event{userID: userID, kind: kind, data: data})
}

func (o *outbox) flush(b Broadcaster) {
	for _, e := range o.events {
		b.BroadcastUserEvent(e.userID, e.kind, e.data)
	}
	o.events = nil
}
