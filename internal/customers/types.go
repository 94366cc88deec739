package customers

import "time"

// Customer is an identified visitor scoped to a tenant.
type Customer struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Answer is one qualification question instance bound to a customer.
// Answered is nil until the question has been answered.
type Answer struct {
	ID         string  `json:"id"`
	CustomerID string  `json:"customer_id"`
	Question   string  `json:"question"`
	Answered   *string `json:"answered,omitempty"`
}
