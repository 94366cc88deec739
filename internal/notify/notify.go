// Package notify delivers one-time handoff notifications to tenant operators.
package notify

import (
	"context"
	"fmt"
)

// Sender delivers an outbound notification. Failures are reported to the
// caller for logging only; the engine never retries or rolls back on them.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// HandoffSubject is the subject line for a live-handoff notification.
func HandoffSubject(businessName string) string {
	if businessName == "" {
		return "A visitor wants to talk to you"
	}
	return fmt.Sprintf("%s: a visitor wants to talk to you", businessName)
}

// HandoffBody is the plain-text body for a live-handoff notification.
func HandoffBody(customerEmail, roomID string) string {
	who := customerEmail
	if who == "" {
		who = "A visitor"
	}
	return fmt.Sprintf(
		"%s asked to speak with a person.\n\nOpen the conversation in your console (room %s) to reply in realtime.",
		who, roomID)
}
