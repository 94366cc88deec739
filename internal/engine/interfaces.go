package engine

import (
	"context"

	"github.com/driftlinehq/driftline/internal/customers"
	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/rooms"
	"github.com/driftlinehq/driftline/internal/tenants"
	"github.com/driftlinehq/driftline/internal/transcript"
)

// RoomStore manages conversation rooms and their mode flags.
type RoomStore interface {
	Ensure(ctx context.Context, roomID, tenantID string) (rooms.Room, error)
	Get(ctx context.Context, roomID string) (rooms.Room, error)
	SetLive(ctx context.Context, roomID string, live bool) error
	SetNotified(ctx context.Context, roomID string) (bool, error)
	LinkCustomer(ctx context.Context, roomID, customerID string) error
}

// TranscriptStore appends to the canonical room transcript and reads back the
// assistant's latest turn.
type TranscriptStore interface {
	Append(ctx context.Context, roomID, role, content string) (transcript.Message, error)
	LastAssistantText(ctx context.Context, roomID string) (string, error)
}

// CustomerStore resolves and mutates identified customers.
type CustomerStore interface {
	FindByEmailPrefix(ctx context.Context, tenantID, email string) (customers.Customer, error)
	Get(ctx context.Context, customerID string) (customers.Customer, error)
	Create(ctx context.Context, tenantID, email string, questions []string) (customers.Customer, error)
	RecordAnswer(ctx context.Context, customerID, answer string) (bool, error)
	ListUnanswered(ctx context.Context, customerID string) ([]customers.Answer, error)
}

// TenantStore reads tenant configuration.
type TenantStore interface {
	Get(ctx context.Context, tenantID string) (tenants.Tenant, error)
	ListQuestions(ctx context.Context, tenantID string) ([]tenants.Question, error)
	OperatorEmail(ctx context.Context, tenantID string) (string, error)
}

// Generator produces one assistant reply from a system prompt and the
// conversation so far.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, history []reply.Turn, visitorText string) (string, error)
}
