// Package rooms is the room registry: idempotent create-or-fetch plus mode flag mutations.
package rooms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlinehq/driftline/internal/db"
)

var ErrRoomNotFound = errors.New("room not found")

// Service manages room lifecycle and mode flags.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a rooms service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "rooms")),
	}
}

// Ensure creates the room if it does not exist and returns its current state.
// Concurrent calls with the same id never produce duplicates: the insert
// carries a no-op conflict branch so both racers read the same row.
func (s *Service) Ensure(ctx context.Context, roomID, tenantID string) (Room, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return Room{}, fmt.Errorf("invalid room id: %w", err)
	}
	pgTenantID, err := db.ParseUUID(tenantID)
	if err != nil {
		return Room{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`INSERT INTO rooms (id, tenant_id)
		 VALUES ($1, $2)
		 ON CONFLICT (id) DO UPDATE SET id = rooms.id
		 RETURNING id, tenant_id, customer_id, live, notified, created_at`,
		pgRoomID, pgTenantID)
	room, err := scanRoom(row)
	if err != nil {
		return Room{}, fmt.Errorf("ensure room: %w", err)
	}
	return room, nil
}

// Get returns a room by ID.
func (s *Service) Get(ctx context.Context, roomID string) (Room, error) {
	pgID, err := db.ParseUUID(roomID)
	if err != nil {
		return Room{}, ErrRoomNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, customer_id, live, notified, created_at
		 FROM rooms WHERE id = $1`, pgID)
	room, err := scanRoom(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Room{}, ErrRoomNotFound
	}
	return room, err
}

// SetLive toggles the bot/live flag. Live may move in either direction:
// operators can hand a room back to the bot.
func (s *Service) SetLive(ctx context.Context, roomID string, live bool) error {
	pgID, err := db.ParseUUID(roomID)
	if err != nil {
		return ErrRoomNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET live = $2, updated_at = now() WHERE id = $1`, pgID, live)
	if err != nil {
		return fmt.Errorf("set live: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// SetNotified marks the room's handoff notification as sent and reports
// whether this call flipped the flag. The flag only ever moves false to true;
// a false return means another caller already claimed the notification, which
// is what keeps concurrent turns from sending it twice.
func (s *Service) SetNotified(ctx context.Context, roomID string) (bool, error) {
	pgID, err := db.ParseUUID(roomID)
	if err != nil {
		return false, ErrRoomNotFound
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET notified = TRUE, updated_at = now()
		 WHERE id = $1 AND notified = FALSE`, pgID)
	if err != nil {
		return false, fmt.Errorf("set notified: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// LinkCustomer attaches an identified customer to the room.
func (s *Service) LinkCustomer(ctx context.Context, roomID, customerID string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return ErrRoomNotFound
	}
	pgCustomerID, err := db.ParseUUID(customerID)
	if err != nil {
		return fmt.Errorf("invalid customer id: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE rooms SET customer_id = $2, updated_at = now() WHERE id = $1`,
		pgRoomID, pgCustomerID)
	if err != nil {
		return fmt.Errorf("link customer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRoomNotFound
	}
	return nil
}

func scanRoom(row pgx.Row) (Room, error) {
	var (
		id         pgtype.UUID
		tenantID   pgtype.UUID
		customerID pgtype.UUID
		live       bool
		notified   bool
		createdAt  pgtype.Timestamptz
	)
	if err := row.Scan(&id, &tenantID, &customerID, &live, &notified, &createdAt); err != nil {
		return Room{}, err
	}
	room := Room{
		ID:        id.String(),
		TenantID:  tenantID.String(),
		Live:      live,
		Notified:  notified,
		CreatedAt: db.TimeFromPg(createdAt),
	}
	if customerID.Valid {
		room.CustomerID = customerID.String()
	}
	return room, nil
}
