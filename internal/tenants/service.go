// Package tenants reads tenant persona configuration and qualification questions.
// The engine consumes this data; tenant CRUD lives outside this service.
package tenants

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

var ErrTenantNotFound = errors.New("tenant not found")

// Service provides read access to tenant persona configuration.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a tenants service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "tenants")),
	}
}

// Get returns a tenant by ID.
func (s *Service) Get(ctx context.Context, tenantID string) (Tenant, error) {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return Tenant{}, ErrTenantNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, domain, name, persona_prompt, operator_email, created_at
		 FROM tenants WHERE id = $1`, pgID)
	return scanTenant(row)
}

// GetByDomain returns a tenant by its domain name.
func (s *Service) GetByDomain(ctx context.Context, domain string) (Tenant, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, domain, name, persona_prompt, operator_email, created_at
		 FROM tenants WHERE domain = $1`, domain)
	return scanTenant(row)
}

// ListQuestions returns the tenant's qualification questions ordered by question text.
func (s *Service) ListQuestions(ctx context.Context, tenantID string) ([]Question, error) {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant id: %w", err)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, question FROM qualification_questions
		 WHERE tenant_id = $1 ORDER BY question ASC`, pgID)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer rows.Close()

	questions := make([]Question, 0)
	for rows.Next() {
		var id pgtype.UUID
		var question string
		if err := rows.Scan(&id, &question); err != nil {
			return nil, err
		}
		questions = append(questions, Question{ID: id.String(), Question: question})
	}
	return questions, rows.Err()
}

// OperatorEmail resolves the tenant's operator contact address; "" means none configured.
func (s *Service) OperatorEmail(ctx context.Context, tenantID string) (string, error) {
	pgID, err := db.ParseUUID(tenantID)
	if err != nil {
		return "", ErrTenantNotFound
	}
	var email pgtype.Text
	err = s.pool.QueryRow(ctx,
		`SELECT operator_email FROM tenants WHERE id = $1`, pgID).Scan(&email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrTenantNotFound
		}
		return "", err
	}
	return db.TextToString(email), nil
}

func scanTenant(row pgx.Row) (Tenant, error) {
	var (
		id            pgtype.UUID
		domain        string
		name          string
		personaPrompt string
		operatorEmail pgtype.Text
		createdAt     pgtype.Timestamptz
	)
	if err := row.Scan(&id, &domain, &name, &personaPrompt, &operatorEmail, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrTenantNotFound
		}
		return Tenant{}, err
	}
	return Tenant{
		ID:            id.String(),
		Domain:        domain,
		Name:          name,
		PersonaPrompt: personaPrompt,
		OperatorEmail: db.TextToString(operatorEmail),
		CreatedAt:     db.TimeFromPg(createdAt),
	}, nil
}
