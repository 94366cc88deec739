package rooms

import "time"

// Room is one visitor conversation thread and its mode flags.
// The room id doubles as the realtime channel key.
type Room struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenant_id"`
	CustomerID string    `json:"customer_id,omitempty"`
	Live       bool      `json:"live"`
	Notified   bool      `json:"notified"`
	CreatedAt  time.Time `json:"created_at"`
}
