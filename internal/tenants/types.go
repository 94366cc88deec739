package tenants

import "time"

// Tenant is the business/domain owner on whose behalf the chatbot operates.
type Tenant struct {
	ID            string    `json:"id"`
	Domain        string    `json:"domain"`
	Name          string    `json:"name"`
	PersonaPrompt string    `json:"persona_prompt"`
	OperatorEmail string    `json:"operator_email,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Question is one tenant-configured qualification question.
type Question struct {
	ID       string `json:"id"`
	Question string `json:"question"`
}
