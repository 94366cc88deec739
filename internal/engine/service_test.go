package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/driftlinehq/driftline/internal/customers"
	"github.com/driftlinehq/driftline/internal/realtime"
	"github.com/driftlinehq/driftline/internal/reply"
	"github.com/driftlinehq/driftline/internal/rooms"
	"github.com/driftlinehq/driftline/internal/tenants"
	"github.com/driftlinehq/driftline/internal/transcript"
)

var (
	testTenantID = uuid.NewString()
	testRoomID   = uuid.NewString()
)

type fakeRooms struct {
	mu    sync.Mutex
	rooms map[string]rooms.Room
}

func newFakeRooms() *fakeRooms {
	return &fakeRooms{rooms: map[string]rooms.Room{}}
}

func (f *fakeRooms) Ensure(_ context.Context, roomID, tenantID string) (rooms.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.rooms[roomID]; ok {
		return existing, nil
	}
	room := rooms.Room{ID: roomID, TenantID: tenantID, CreatedAt: time.Now()}
	f.rooms[roomID] = room
	return room, nil
}

func (f *fakeRooms) Get(_ context.Context, roomID string) (rooms.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[roomID]
	if !ok {
		return rooms.Room{}, rooms.ErrRoomNotFound
	}
	return room, nil
}

func (f *fakeRooms) SetLive(_ context.Context, roomID string, live bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[roomID]
	room.Live = live
	f.rooms[roomID] = room
	return nil
}

func (f *fakeRooms) SetNotified(_ context.Context, roomID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[roomID]
	if room.Notified {
		return false, nil
	}
	room.Notified = true
	f.rooms[roomID] = room
	return true, nil
}

func (f *fakeRooms) LinkCustomer(_ context.Context, roomID, customerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	room := f.rooms[roomID]
	room.CustomerID = customerID
	f.rooms[roomID] = room
	return nil
}

type fakeTranscript struct {
	mu       sync.Mutex
	messages []transcript.Message
}

func (f *fakeTranscript) Append(_ context.Context, roomID, role, content string) (transcript.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msg := transcript.Message{
		ID:        fmt.Sprintf("m%d", len(f.messages)+1),
		RoomID:    roomID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
	f.messages = append(f.messages, msg)
	return msg, nil
}

func (f *fakeTranscript) LastAssistantText(_ context.Context, roomID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].RoomID == roomID && f.messages[i].Role == transcript.RoleAssistant {
			return f.messages[i].Content, nil
		}
	}
	return "", nil
}

func (f *fakeTranscript) all() []transcript.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]transcript.Message(nil), f.messages...)
}

type fakeCustomers struct {
	mu      sync.Mutex
	byID    map[string]customers.Customer
	answers map[string][]customers.Answer
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{
		byID:    map[string]customers.Customer{},
		answers: map[string][]customers.Answer{},
	}
}

func (f *fakeCustomers) FindByEmailPrefix(_ context.Context, tenantID, email string) (customers.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byID {
		if c.TenantID == tenantID && strings.HasPrefix(c.Email, email) {
			return c, nil
		}
	}
	return customers.Customer{}, customers.ErrCustomerNotFound
}

func (f *fakeCustomers) Get(_ context.Context, customerID string) (customers.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.byID[customerID]
	if !ok {
		return customers.Customer{}, customers.ErrCustomerNotFound
	}
	return c, nil
}

func (f *fakeCustomers) Create(_ context.Context, tenantID, email string, questions []string) (customers.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := customers.Customer{ID: uuid.NewString(), TenantID: tenantID, Email: email, CreatedAt: time.Now()}
	f.byID[c.ID] = c
	for _, q := range questions {
		f.answers[c.ID] = append(f.answers[c.ID], customers.Answer{
			ID:         uuid.NewString(),
			CustomerID: c.ID,
			Question:   q,
		})
	}
	return c, nil
}

func (f *fakeCustomers) RecordAnswer(_ context.Context, customerID, answer string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	open := make([]*customers.Answer, 0)
	for i := range f.answers[customerID] {
		if f.answers[customerID][i].Answered == nil {
			open = append(open, &f.answers[customerID][i])
		}
	}
	if len(open) == 0 {
		return false, nil
	}
	sort.Slice(open, func(i, j int) bool { return open[i].Question < open[j].Question })
	open[0].Answered = &answer
	return true, nil
}

func (f *fakeCustomers) ListUnanswered(_ context.Context, customerID string) ([]customers.Answer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []customers.Answer
	for _, a := range f.answers[customerID] {
		if a.Answered == nil {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Question < out[j].Question })
	return out, nil
}

type fakeTenants struct {
	tenant    tenants.Tenant
	questions []tenants.Question
	operator  string
}

func (f *fakeTenants) Get(_ context.Context, tenantID string) (tenants.Tenant, error) {
	if tenantID != f.tenant.ID {
		return tenants.Tenant{}, tenants.ErrTenantNotFound
	}
	return f.tenant, nil
}

func (f *fakeTenants) ListQuestions(_ context.Context, _ string) ([]tenants.Question, error) {
	return f.questions, nil
}

func (f *fakeTenants) OperatorEmail(_ context.Context, _ string) (string, error) {
	return f.operator, nil
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	calls   int
	prompts []string
}

func (f *fakeGenerator) Generate(_ context.Context, systemPrompt string, _ []reply.Turn, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, systemPrompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []realtime.Envelope
}

func (f *fakeBroadcaster) Publish(_ string, event realtime.Envelope) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeBroadcaster) all() []realtime.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]realtime.Envelope(nil), f.events...)
}

type sentMail struct {
	to      string
	subject string
	body    string
}

type fakeSender struct {
	sent chan sentMail
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(chan sentMail, 4)}
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.sent <- sentMail{to: to, subject: subject, body: body}
	return nil
}

func (f *fakeSender) wait(t *testing.T) sentMail {
	t.Helper()
	select {
	case m := <-f.sent:
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notification send")
		return sentMail{}
	}
}

type fixture struct {
	service     *Service
	rooms       *fakeRooms
	transcripts *fakeTranscript
	customers   *fakeCustomers
	tenants     *fakeTenants
	generator   *fakeGenerator
	broadcaster *fakeBroadcaster
	sender      *fakeSender
}

func newFixture() *fixture {
	f := &fixture{
		rooms:       newFakeRooms(),
		transcripts: &fakeTranscript{},
		customers:   newFakeCustomers(),
		tenants: &fakeTenants{
			tenant: tenants.Tenant{
				ID:            testTenantID,
				Domain:        "acme.example",
				Name:          "Acme",
				PersonaPrompt: "You are Acme's assistant.",
			},
			operator: "owner@acme.example",
		},
		generator:   &fakeGenerator{reply: "Happy to help!"},
		broadcaster: &fakeBroadcaster{},
		sender:      newFakeSender(),
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.service = NewService(log, f.rooms, f.transcripts, f.customers, f.tenants, f.generator, f.broadcaster, f.sender)
	return f
}

func (f *fixture) turn(t *testing.T, req TurnRequest) TurnResult {
	t.Helper()
	result, err := f.service.ProcessTurn(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessTurn: %v", err)
	}
	return result
}

func TestProcessTurnInvalidInput(t *testing.T) {
	f := newFixture()

	cases := []struct {
		name string
		req  TurnRequest
	}{
		{"missing tenant", TurnRequest{Content: "hi"}},
		{"malformed tenant", TurnRequest{TenantID: "not-a-uuid", Content: "hi"}},
		{"unknown tenant", TurnRequest{TenantID: uuid.NewString(), Content: "hi"}},
		{"empty content", TurnRequest{TenantID: testTenantID}},
		{"malformed room", TurnRequest{TenantID: testTenantID, RoomID: "nope", Content: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.service.ProcessTurn(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
		})
	}
	if got := len(f.transcripts.all()); got != 0 {
		t.Fatalf("persisted %d messages on rejected input", got)
	}
}

func TestProcessTurnNewRoomAndReuse(t *testing.T) {
	f := newFixture()

	first := f.turn(t, TurnRequest{TenantID: testTenantID, Content: "hello"})
	if first.RoomID == "" {
		t.Fatal("expected generated room id")
	}

	second := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: first.RoomID, Content: "again"})
	if second.RoomID != first.RoomID {
		t.Fatalf("room id changed: %s != %s", second.RoomID, first.RoomID)
	}

	fresh := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: first.RoomID, NewThread: true, Content: "new"})
	if fresh.RoomID == first.RoomID {
		t.Fatal("new thread reused the old room")
	}
}

func TestProcessTurnAnonymousUsesSalesPrompt(t *testing.T) {
	f := newFixture()

	result := f.turn(t, TurnRequest{TenantID: testTenantID, Content: "what do you sell?"})
	if result.Reply == nil || result.Reply.Content != "Happy to help!" {
		t.Fatalf("reply = %+v", result.Reply)
	}
	if !strings.Contains(f.generator.lastPrompt(), "do not yet know who the visitor is") {
		t.Fatalf("expected sales prompt, got %q", f.generator.lastPrompt())
	}

	msgs := f.transcripts.all()
	if len(msgs) != 2 || msgs[0].Role != transcript.RoleVisitor || msgs[1].Role != transcript.RoleAssistant {
		t.Fatalf("transcript = %+v", msgs)
	}
	if got := len(f.broadcaster.all()); got != 2 {
		t.Fatalf("broadcast %d events, want 2", got)
	}
}

func TestProcessTurnNewEmailWelcomesWithoutGeneration(t *testing.T) {
	f := newFixture()
	f.tenants.questions = []tenants.Question{
		{ID: "q1", Question: "What is your budget?"},
		{ID: "q2", Question: "When do you want to start?"},
	}

	result := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "sure, it's jane@corp.example"})
	if f.generator.callCount() != 0 {
		t.Fatalf("generator called %d times on identification turn", f.generator.callCount())
	}
	want := "Welcome aboard jane! I'm glad to connect with you. Is there anything you need help with?"
	if result.Reply == nil || result.Reply.Content != want {
		t.Fatalf("reply = %+v, want %q", result.Reply, want)
	}

	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if room.CustomerID == "" {
		t.Fatal("room not linked to the new customer")
	}
	open, _ := f.customers.ListUnanswered(context.Background(), room.CustomerID)
	if len(open) != 2 {
		t.Fatalf("question snapshot has %d entries, want 2", len(open))
	}
}

func TestProcessTurnExistingEmailPrefixMatchLinks(t *testing.T) {
	f := newFixture()
	existing, _ := f.customers.Create(context.Background(), testTenantID, "jane.doe@corp.example", nil)

	// The stored address extends the supplied one; prefix matching links them.
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "I'm jane.doe@corp.exam"})
	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if room.CustomerID != existing.ID {
		t.Fatalf("room linked to %q, want %q", room.CustomerID, existing.ID)
	}
	if f.generator.callCount() != 1 {
		t.Fatalf("generator called %d times, want 1", f.generator.callCount())
	}
	if !strings.Contains(f.generator.lastPrompt(), "Acme's assistant") {
		t.Fatalf("expected persona prompt, got %q", f.generator.lastPrompt())
	}
}

func TestProcessTurnQualificationOrdering(t *testing.T) {
	f := newFixture()
	f.tenants.questions = []tenants.Question{
		{ID: "q1", Question: "A: what is your budget?"},
		{ID: "q2", Question: "B: when do you want to start?"},
	}
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "jane@corp.example"})

	// The assistant asks the first question; its stored reply keeps the
	// marker. The welcome reply before it had none, so nothing is claimed
	// on this turn.
	f.generator.reply = "A: what is your budget? (complete)"
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "ok"})

	// The follow-up visitor message answers it. The claim is driven by the
	// stored transcript, not by anything the client echoes back.
	f.generator.reply = "Sounds good!"
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "around 5k"})

	room, _ := f.rooms.Get(context.Background(), testRoomID)
	open, _ := f.customers.ListUnanswered(context.Background(), room.CustomerID)
	if len(open) != 1 || open[0].Question != "B: when do you want to start?" {
		t.Fatalf("open questions = %+v", open)
	}
	if !strings.Contains(f.generator.lastPrompt(), "B: when do you want to start?") {
		t.Fatalf("prompt should carry the remaining question: %q", f.generator.lastPrompt())
	}
	if strings.Contains(f.generator.lastPrompt(), "A: what is your budget?") {
		t.Fatal("answered question still in prompt")
	}

	// The last stored assistant reply carried no marker, so this message
	// records nothing.
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "next month maybe"})
	open, _ = f.customers.ListUnanswered(context.Background(), room.CustomerID)
	if len(open) != 1 {
		t.Fatalf("open questions = %+v, want the second still open", open)
	}
}

func TestProcessTurnHandoffMarker(t *testing.T) {
	f := newFixture()
	f.generator.reply = "Let me get a teammate for you. (realtime)"
	customer, _ := f.customers.Create(context.Background(), testTenantID, "jane@corp.example", nil)
	f.rooms.Ensure(context.Background(), testRoomID, testTenantID)
	f.rooms.LinkCustomer(context.Background(), testRoomID, customer.ID)

	result := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "this bot is useless"})
	if !result.Live {
		t.Fatal("expected live mode after handoff marker")
	}
	if result.Reply.Content != "Let me get a teammate for you." {
		t.Fatalf("marker not stripped: %q", result.Reply.Content)
	}

	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if !room.Live || !room.Notified {
		t.Fatalf("room = %+v, want live and notified", room)
	}
	mail := f.sender.wait(t)
	if mail.to != "owner@acme.example" {
		t.Fatalf("notification sent to %q", mail.to)
	}
	if !strings.Contains(mail.body, "jane@corp.example") {
		t.Fatalf("notification body missing customer email: %q", mail.body)
	}

	var sawLiveEvent bool
	for _, e := range f.broadcaster.all() {
		if e.Event == realtime.EventLive {
			sawLiveEvent = true
		}
	}
	if !sawLiveEvent {
		t.Fatal("live transition not broadcast")
	}
}

func TestProcessTurnHandoffBeatsURLRewrite(t *testing.T) {
	f := newFixture()
	f.generator.reply = "See https://acme.example/pricing (realtime)"

	result := f.turn(t, TurnRequest{TenantID: testTenantID, Content: "pricing?"})
	if !result.Live {
		t.Fatal("expected handoff")
	}
	if strings.HasPrefix(result.Reply.Content, "Great! You can follow this link") {
		t.Fatalf("URL rewrite applied despite handoff: %q", result.Reply.Content)
	}
}

func TestProcessTurnURLRewrite(t *testing.T) {
	f := newFixture()
	f.generator.reply = "You can book here: https://acme.example/book."

	result := f.turn(t, TurnRequest{TenantID: testTenantID, Content: "can I book a call?"})
	want := "Great! You can follow this link to continue: https://acme.example/book"
	if result.Reply.Content != want {
		t.Fatalf("reply = %q, want %q", result.Reply.Content, want)
	}
	if result.Live {
		t.Fatal("URL reply must not flip the room live")
	}
}

func TestProcessTurnCompletionMarkerHiddenFromVisitor(t *testing.T) {
	f := newFixture()
	f.generator.reply = "What is your budget? (complete)"

	result := f.turn(t, TurnRequest{TenantID: testTenantID, Content: "hi"})

	// Both visitor-facing surfaces strip the marker.
	if result.Reply.Content != "What is your budget?" {
		t.Fatalf("returned reply = %q, want marker stripped", result.Reply.Content)
	}
	events := f.broadcaster.all()
	last := events[len(events)-1]
	msg, ok := last.Data.(transcript.Message)
	if !ok {
		t.Fatalf("broadcast data type %T", last.Data)
	}
	if msg.Content != "What is your budget?" {
		t.Fatalf("broadcast content = %q, want marker stripped", msg.Content)
	}

	// The stored row keeps it so the next turn sees the open question.
	msgs := f.transcripts.all()
	stored := msgs[len(msgs)-1]
	if stored.Content != "What is your budget? (complete)" {
		t.Fatalf("stored reply = %q, want marker retained", stored.Content)
	}
}

func TestProcessTurnKeywordHandoffSkipsGeneration(t *testing.T) {
	f := newFixture()

	result := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "I want to talk to someone"})
	if f.generator.callCount() != 0 {
		t.Fatalf("generator called %d times on keyword handoff", f.generator.callCount())
	}
	if !result.Live {
		t.Fatal("expected live mode")
	}
	if result.Reply == nil || result.Reply.Content != reassuranceReply {
		t.Fatalf("reply = %+v", result.Reply)
	}
	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if !room.Live {
		t.Fatal("room not flipped live")
	}
}

func TestProcessTurnLiveRelaysWithoutGeneration(t *testing.T) {
	f := newFixture()
	customer, _ := f.customers.Create(context.Background(), testTenantID, "jane@corp.example", nil)
	f.rooms.Ensure(context.Background(), testRoomID, testTenantID)
	f.rooms.LinkCustomer(context.Background(), testRoomID, customer.ID)
	f.rooms.SetLive(context.Background(), testRoomID, true)

	result := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "anyone there?"})
	if result.Reply != nil {
		t.Fatalf("live turn produced a reply: %+v", result.Reply)
	}
	if !result.Live {
		t.Fatal("expected live result")
	}
	if f.generator.callCount() != 0 {
		t.Fatal("generator called on live relay")
	}

	f.sender.wait(t)
	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if !room.Notified {
		t.Fatal("operator not notified")
	}

	// A second live message must not notify again.
	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "hello??"})
	select {
	case <-f.sender.sent:
		t.Fatal("duplicate notification")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestProcessTurnLiveIdentityRepair(t *testing.T) {
	f := newFixture()
	existing, _ := f.customers.Create(context.Background(), testTenantID, "jane@corp.example", nil)
	f.rooms.Ensure(context.Background(), testRoomID, testTenantID)
	f.rooms.SetLive(context.Background(), testRoomID, true)

	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "it's jane@corp.example"})
	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if room.CustomerID != existing.ID {
		t.Fatalf("room linked to %q, want %q", room.CustomerID, existing.ID)
	}
	if mail := f.sender.wait(t); !strings.Contains(mail.body, "jane@corp.example") {
		t.Fatalf("notification body = %q", mail.body)
	}
}

func TestProcessTurnImageShortCircuit(t *testing.T) {
	f := newFixture()

	result := f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Image: true, Content: "(image:upload-123.png)"})
	if f.generator.callCount() != 0 {
		t.Fatal("generator called on image turn")
	}
	if result.Reply == nil || result.Reply.Content != imageAckReply {
		t.Fatalf("reply = %+v", result.Reply)
	}
	if got := len(f.broadcaster.all()); got != 2 {
		t.Fatalf("broadcast %d events, want 2", got)
	}
}

func TestProcessTurnProviderFailureKeepsVisitorMessage(t *testing.T) {
	f := newFixture()
	f.generator.err = errors.New("upstream 500")

	_, err := f.service.ProcessTurn(context.Background(), TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "hello"})
	if !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}

	msgs := f.transcripts.all()
	if len(msgs) != 1 || msgs[0].Role != transcript.RoleVisitor || msgs[0].Content != "hello" {
		t.Fatalf("transcript = %+v, want the visitor message kept", msgs)
	}
}

func TestProcessTurnNoOperatorEmailStillMarksNotified(t *testing.T) {
	f := newFixture()
	f.tenants.operator = ""
	customer, _ := f.customers.Create(context.Background(), testTenantID, "jane@corp.example", nil)
	f.rooms.Ensure(context.Background(), testRoomID, testTenantID)
	f.rooms.LinkCustomer(context.Background(), testRoomID, customer.ID)
	f.rooms.SetLive(context.Background(), testRoomID, true)

	f.turn(t, TurnRequest{TenantID: testTenantID, RoomID: testRoomID, Content: "hello"})
	room, _ := f.rooms.Get(context.Background(), testRoomID)
	if !room.Notified {
		t.Fatal("room should be marked notified even without an operator address")
	}
	select {
	case <-f.sender.sent:
		t.Fatal("unexpected send without operator address")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyOnceGatedByFlagFlip(t *testing.T) {
	f := newFixture()
	f.rooms.Ensure(context.Background(), testRoomID, testTenantID)
	room, _ := f.rooms.Get(context.Background(), testRoomID)

	f.service.notifyOnce(context.Background(), f.tenants.tenant, room, "jane@corp.example")
	f.sender.wait(t)

	// A second caller racing in with a stale room copy, where Notified
	// still reads false, must lose the claim and send nothing.
	f.service.notifyOnce(context.Background(), f.tenants.tenant, room, "jane@corp.example")
	select {
	case <-f.sender.sent:
		t.Fatal("duplicate notification")
	case <-time.After(100 * time.Millisecond):
	}
}
