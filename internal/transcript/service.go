// Package transcript appends messages to a room and retrieves ordered history.
// The transcript is the source of truth; realtime delivery is a side channel.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlinehq/driftline/internal/db"
)

const defaultListLimit = 200

// Service is the transcript store adapter.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a transcript service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "transcript")),
	}
}

// Append stores one message in the room and returns the persisted row.
func (s *Service) Append(ctx context.Context, roomID, role, content string) (Message, error) {
	role = strings.TrimSpace(role)
	if role != RoleVisitor && role != RoleAssistant {
		return Message{}, fmt.Errorf("invalid message role: %s", role)
	}
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return Message{}, fmt.Errorf("invalid room id: %w", err)
	}
	var (
		id        pgtype.UUID
		seen      bool
		createdAt pgtype.Timestamptz
	)
	err = s.pool.QueryRow(ctx,
		`INSERT INTO messages (room_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, seen, created_at`,
		pgRoomID, role, content).Scan(&id, &seen, &createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("append message: %w", err)
	}
	return Message{
		ID:        id.String(),
		RoomID:    roomID,
		Role:      role,
		Content:   content,
		Seen:      seen,
		CreatedAt: db.TimeFromPg(createdAt),
	}, nil
}

// LastAssistantText returns the content of the room's most recent assistant
// message, or "" when the assistant has not spoken yet. The engine reads it to
// decide whether the incoming visitor message answers a qualification
// question; the stored row is authoritative, not whatever the client echoes.
func (s *Service) LastAssistantText(ctx context.Context, roomID string) (string, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return "", fmt.Errorf("invalid room id: %w", err)
	}
	var content string
	err = s.pool.QueryRow(ctx,
		`SELECT content FROM messages
		 WHERE room_id = $1 AND role = $2
		 ORDER BY created_at DESC
		 LIMIT 1`, pgRoomID, RoleAssistant).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("last assistant message: %w", err)
	}
	return content, nil
}

// List returns the room's messages ordered by creation time ascending.
func (s *Service) List(ctx context.Context, roomID string, limit int) ([]Message, error) {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return nil, fmt.Errorf("invalid room id: %w", err)
	}
	if limit <= 0 {
		limit = defaultListLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, room_id, role, content, seen, created_at
		 FROM messages WHERE room_id = $1
		 ORDER BY created_at ASC
		 LIMIT $2`, pgRoomID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]Message, 0)
	for rows.Next() {
		var (
			id        pgtype.UUID
			room      pgtype.UUID
			role      string
			content   string
			seen      bool
			createdAt pgtype.Timestamptz
		)
		if err := rows.Scan(&id, &room, &role, &content, &seen, &createdAt); err != nil {
			return nil, err
		}
		messages = append(messages, Message{
			ID:        id.String(),
			RoomID:    room.String(),
			Role:      role,
			Content:   content,
			Seen:      seen,
			CreatedAt: db.TimeFromPg(createdAt),
		})
	}
	return messages, rows.Err()
}

// MarkSeen flags every assistant-visible message in the room as read.
// Read tracking is driven by the console, not by the engine.
func (s *Service) MarkSeen(ctx context.Context, roomID string) error {
	pgRoomID, err := db.ParseUUID(roomID)
	if err != nil {
		return fmt.Errorf("invalid room id: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE messages SET seen = TRUE WHERE room_id = $1 AND seen = FALSE`, pgRoomID)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
