// Package engine orchestrates one conversation turn end to end: room
// resolution, mode handling, customer identification, reply generation,
// signal handling and realtime fan-out.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/driftlinehq/driftline/internal/customers"
	"github.com/driftlinehq/driftline/internal/notify"
	"github.com/driftlinehq/driftline/internal/realtime"
	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/rooms"
	"github.com/driftlinehq/driftline/internal/signals"
	"github.com/driftlinehq/driftline/internal/tenants"
	"github.com/driftlinehq/driftline/internal/transcript"
)

const notifySendTimeout = 15 * time.Second

// Service runs the turn state machine. All collaborators are injected so the
// generation backend, fan-out transport and notification channel can be
// swapped without touching the flow.
type Service struct {
	logger      *slog.Logger
	rooms       RoomStore
	transcripts TranscriptStore
	customers   CustomerStore
	tenants     TenantStore
	generator   Generator
	broadcaster realtime.Broadcaster
	sender      notify.Sender
}

func NewService(
	log *slog.Logger,
	roomStore RoomStore,
	transcriptStore TranscriptStore,
	customerStore CustomerStore,
	tenantStore TenantStore,
	generator Generator,
	broadcaster realtime.Broadcaster,
	sender notify.Sender,
) *Service {
	return &Service{
		logger:      log.With(slog.String("service", "engine")),
		rooms:       roomStore,
		transcripts: transcriptStore,
		customers:   customerStore,
		tenants:     tenantStore,
		generator:   generator,
		broadcaster: broadcaster,
		sender:      sender,
	}
}

// ProcessTurn handles one inbound visitor message and returns the room state
// plus the assistant reply, if one was produced this turn.
func (s *Service) ProcessTurn(ctx context.Context, req TurnRequest) (TurnResult, error) {
	content := strings.TrimSpace(req.Content)
	if req.TenantID == "" || uuid.Validate(req.TenantID) != nil {
		return TurnResult{}, fmt.Errorf("%w: missing or malformed tenant id", ErrInvalidInput)
	}
	if content == "" {
		return TurnResult{}, fmt.Errorf("%w: empty message", ErrInvalidInput)
	}

	tenant, err := s.tenants.Get(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, tenants.ErrTenantNotFound) {
			return TurnResult{}, fmt.Errorf("%w: unknown tenant", ErrInvalidInput)
		}
		return TurnResult{}, fmt.Errorf("load tenant: %w", err)
	}

	roomID := req.RoomID
	if roomID == "" || req.NewThread {
		roomID = uuid.NewString()
	} else if uuid.Validate(roomID) != nil {
		return TurnResult{}, fmt.Errorf("%w: malformed room id", ErrInvalidInput)
	}

	room, err := s.rooms.Ensure(ctx, roomID, tenant.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("ensure room: %w", err)
	}

	if req.Image {
		return s.handleImage(ctx, room, content)
	}
	if room.Live {
		return s.handleLive(ctx, tenant, room, content)
	}
	if signals.MatchesHandoffKeyword(content) {
		return s.handleKeywordHandoff(ctx, tenant, room, content)
	}

	customer, welcomed, result, err := s.resolveCustomer(ctx, tenant, room, content)
	if err != nil || welcomed {
		return result, err
	}

	// The visitor message is persisted before generation so a provider
	// failure never loses it.
	if _, err := s.persist(ctx, room.ID, transcript.RoleVisitor, content); err != nil {
		return TurnResult{}, err
	}

	// Whether this message answers a qualification question is decided by
	// the stored transcript: if the assistant's latest persisted turn
	// carried the completion marker, the visitor is answering it. Client
	// echoed history plays no part in the claim.
	if customer != nil {
		lastAssistant, err := s.transcripts.LastAssistantText(ctx, room.ID)
		if err != nil {
			return TurnResult{}, fmt.Errorf("load last assistant turn: %w", err)
		}
		if signals.HasCompletion(lastAssistant) {
			if _, err := s.customers.RecordAnswer(ctx, customer.ID, content); err != nil {
				return TurnResult{}, fmt.Errorf("record answer: %w", err)
			}
		}
	}

	systemPrompt, err := s.buildPrompt(ctx, tenant, customer)
	if err != nil {
		return TurnResult{}, err
	}

	raw, err := s.generator.Generate(ctx, systemPrompt, req.History, content)
	if err != nil {
		s.logger.Error("reply generation failed", slog.String("room_id", room.ID), slog.Any("error", err))
		return TurnResult{RoomID: room.ID}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}

	parsed := signals.ParseAssistant(raw)
	if parsed.Handoff {
		if err := s.rooms.SetLive(ctx, room.ID, true); err != nil {
			return TurnResult{}, fmt.Errorf("set live: %w", err)
		}
		room.Live = true
		s.broadcastLive(room.ID, true)
	}

	msg, err := s.persist(ctx, room.ID, transcript.RoleAssistant, parsed.Text)
	if err != nil {
		return TurnResult{}, err
	}

	if parsed.Handoff && customer != nil {
		s.notifyOnce(ctx, tenant, room, customer.Email)
	}

	// The stored row keeps the completion marker so the next turn can see a
	// question was asked; the visitor never sees it on any surface.
	shown := msg
	shown.Content = parsed.Display
	return TurnResult{RoomID: room.ID, Live: room.Live, Reply: &shown}, nil
}

// handleImage acknowledges an image message without a generation call.
func (s *Service) handleImage(ctx context.Context, room rooms.Room, content string) (TurnResult, error) {
	if _, err := s.persist(ctx, room.ID, transcript.RoleVisitor, content); err != nil {
		return TurnResult{}, err
	}
	msg, err := s.persist(ctx, room.ID, transcript.RoleAssistant, imageAckReply)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{RoomID: room.ID, Live: room.Live, Reply: &msg}, nil
}

// handleLive relays a visitor message in a human-handled room: persist,
// broadcast, repair the customer link if the visitor just identified
// themselves, and notify the operator exactly once.
func (s *Service) handleLive(ctx context.Context, tenant tenants.Tenant, room rooms.Room, content string) (TurnResult, error) {
	if _, err := s.persist(ctx, room.ID, transcript.RoleVisitor, content); err != nil {
		return TurnResult{}, err
	}

	email := ""
	if room.CustomerID == "" {
		if addr := customers.ExtractEmail(content); addr != "" {
			existing, err := s.customers.FindByEmailPrefix(ctx, tenant.ID, addr)
			if err == nil {
				if err := s.rooms.LinkCustomer(ctx, room.ID, existing.ID); err != nil {
					return TurnResult{}, fmt.Errorf("link customer: %w", err)
				}
				room.CustomerID = existing.ID
				email = existing.Email
			} else if !errors.Is(err, customers.ErrCustomerNotFound) {
				return TurnResult{}, fmt.Errorf("find customer: %w", err)
			}
		}
	} else {
		existing, err := s.customers.Get(ctx, room.CustomerID)
		if err != nil {
			return TurnResult{}, fmt.Errorf("load customer: %w", err)
		}
		email = existing.Email
	}

	if room.CustomerID != "" && !room.Notified {
		s.notifyOnce(ctx, tenant, room, email)
	}

	return TurnResult{RoomID: room.ID, Live: true}, nil
}

// handleKeywordHandoff flips the room to live on an explicit visitor request
// for a human, emitting the fixed reassurance reply instead of a generated one.
func (s *Service) handleKeywordHandoff(ctx context.Context, tenant tenants.Tenant, room rooms.Room, content string) (TurnResult, error) {
	if _, err := s.persist(ctx, room.ID, transcript.RoleVisitor, content); err != nil {
		return TurnResult{}, err
	}
	if err := s.rooms.SetLive(ctx, room.ID, true); err != nil {
		return TurnResult{}, fmt.Errorf("set live: %w", err)
	}
	room.Live = true
	s.broadcastLive(room.ID, true)

	msg, err := s.persist(ctx, room.ID, transcript.RoleAssistant, reassuranceReply)
	if err != nil {
		return TurnResult{}, err
	}

	if room.CustomerID != "" {
		customer, err := s.customers.Get(ctx, room.CustomerID)
		if err != nil {
			return TurnResult{}, fmt.Errorf("load customer: %w", err)
		}
		s.notifyOnce(ctx, tenant, room, customer.Email)
	}

	return TurnResult{RoomID: room.ID, Live: true, Reply: &msg}, nil
}

// resolveCustomer returns the customer bound to the room, binding one when
// the visitor just supplied an email. A brand-new customer short-circuits the
// turn with the fixed welcome reply; welcomed reports that case.
func (s *Service) resolveCustomer(ctx context.Context, tenant tenants.Tenant, room rooms.Room, content string) (customer *customers.Customer, welcomed bool, result TurnResult, err error) {
	if room.CustomerID != "" {
		existing, err := s.customers.Get(ctx, room.CustomerID)
		if err != nil {
			return nil, false, TurnResult{}, fmt.Errorf("load customer: %w", err)
		}
		return &existing, false, TurnResult{}, nil
	}

	email := customers.ExtractEmail(content)
	if email == "" {
		return nil, false, TurnResult{}, nil
	}

	existing, err := s.customers.FindByEmailPrefix(ctx, tenant.ID, email)
	if err == nil {
		if err := s.rooms.LinkCustomer(ctx, room.ID, existing.ID); err != nil {
			return nil, false, TurnResult{}, fmt.Errorf("link customer: %w", err)
		}
		return &existing, false, TurnResult{}, nil
	}
	if !errors.Is(err, customers.ErrCustomerNotFound) {
		return nil, false, TurnResult{}, fmt.Errorf("find customer: %w", err)
	}

	result, err = s.welcomeNewCustomer(ctx, tenant, room, content, email)
	return nil, true, result, err
}

// welcomeNewCustomer creates the customer with a snapshot of the tenant's
// current qualification questions and replies with the fixed welcome text.
func (s *Service) welcomeNewCustomer(ctx context.Context, tenant tenants.Tenant, room rooms.Room, content, email string) (TurnResult, error) {
	if _, err := s.persist(ctx, room.ID, transcript.RoleVisitor, content); err != nil {
		return TurnResult{}, err
	}

	questions, err := s.tenants.ListQuestions(ctx, tenant.ID)
	if err != nil {
		return TurnResult{}, fmt.Errorf("list questions: %w", err)
	}
	texts := make([]string, 0, len(questions))
	for _, q := range questions {
		texts = append(texts, q.Question)
	}

	created, err := s.customers.Create(ctx, tenant.ID, email, texts)
	if err != nil {
		return TurnResult{}, fmt.Errorf("create customer: %w", err)
	}
	if err := s.rooms.LinkCustomer(ctx, room.ID, created.ID); err != nil {
		return TurnResult{}, fmt.Errorf("link customer: %w", err)
	}

	welcome := fmt.Sprintf(welcomeFormat, customers.LocalPart(email))
	msg, err := s.persist(ctx, room.ID, transcript.RoleAssistant, welcome)
	if err != nil {
		return TurnResult{}, err
	}
	return TurnResult{RoomID: room.ID, Reply: &msg}, nil
}

// buildPrompt picks the identified persona prompt or the anonymous sales
// prompt depending on whether the room has a bound customer.
func (s *Service) buildPrompt(ctx context.Context, tenant tenants.Tenant, customer *customers.Customer) (string, error) {
	if customer == nil {
		return reply.BuildSalesPrompt(tenant.Name), nil
	}
	unanswered, err := s.customers.ListUnanswered(ctx, customer.ID)
	if err != nil {
		return "", fmt.Errorf("list unanswered: %w", err)
	}
	open := make([]string, 0, len(unanswered))
	for _, a := range unanswered {
		open = append(open, a.Question)
	}
	return reply.BuildPersonaPrompt(tenant.PersonaPrompt, tenant.Name, open), nil
}

// persist appends a message and fans it out to room subscribers. Broadcast
// failures never fail the turn; the transcript row is the source of truth.
func (s *Service) persist(ctx context.Context, roomID, role, content string) (transcript.Message, error) {
	msg, err := s.transcripts.Append(ctx, roomID, role, content)
	if err != nil {
		return transcript.Message{}, fmt.Errorf("append message: %w", err)
	}
	rendered := msg
	rendered.Content = signals.StripCompletion(msg.Content)
	s.broadcaster.Publish(roomID, realtime.Envelope{
		Event:  realtime.EventMessage,
		RoomID: roomID,
		Data:   rendered,
	})
	return msg, nil
}

func (s *Service) broadcastLive(roomID string, live bool) {
	s.broadcaster.Publish(roomID, realtime.Envelope{
		Event:  realtime.EventLive,
		RoomID: roomID,
		Data:   map[string]bool{"live": live},
	})
}

// notifyOnce emails the tenant operator about a live conversation at most
// once per room. The flag flips before the send; a failed send is logged and
// never retried through this path.
func (s *Service) notifyOnce(ctx context.Context, tenant tenants.Tenant, room rooms.Room, customerEmail string) {
	if room.Notified {
		return
	}
	flipped, err := s.rooms.SetNotified(ctx, room.ID)
	if err != nil {
		s.logger.Error("mark notified", slog.String("room_id", room.ID), slog.Any("error", err))
		return
	}
	if !flipped {
		// A concurrent turn holding a stale room copy got here first.
		return
	}

	operator, err := s.tenants.OperatorEmail(ctx, tenant.ID)
	if err != nil {
		s.logger.Error("load operator email", slog.String("tenant_id", tenant.ID), slog.Any("error", err))
		return
	}
	if operator == "" {
		s.logger.Info("no operator email configured, skipping notification", slog.String("tenant_id", tenant.ID))
		return
	}

	subject := notify.HandoffSubject(tenant.Name)
	body := notify.HandoffBody(customerEmail, room.ID)
	log := s.logger
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), notifySendTimeout)
		defer cancel()
		if err := s.sender.Send(sendCtx, operator, subject, body); err != nil {
			log.Error("handoff notification failed",
				slog.String("room_id", room.ID),
				slog.String("to", operator),
				slog.Any("error", err))
		}
	}()
}
