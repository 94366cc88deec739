package transcript

import "time"

// Message roles within a room transcript.
const (
	RoleVisitor   = "visitor"
	RoleAssistant = "assistant"
)

// Message is one transcript entry. Content is opaque text; it may carry an
// image reference token that the engine never interprets beyond signal matching.
type Message struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Seen      bool      `json:"seen"`
	CreatedAt time.Time `json:"created_at"`
}
