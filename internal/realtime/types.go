package realtime

// Event names published on room channels.
const (
	EventMessage = "message"
	EventLive    = "live"
)

// Envelope is the JSON payload delivered to every room subscriber. Both the
// visitor widget and the operator console render from this one shape.
type Envelope struct {
	Event  string `json:"event"`
	RoomID string `json:"room_id"`
	Data   any    `json:"data,omitempty"`
}

// Broadcaster fans an event out to every viewer of a room. Delivery is
// at-most-once and best-effort: implementations swallow errors and must never
// block the canonical transcript write path.
type Broadcaster interface {
	Publish(roomID string, event Envelope)
}
