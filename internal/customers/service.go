// Package customers resolves visitor identity and tracks qualification progress.
package customers

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

var ErrCustomerNotFound = errors.New("customer not found")

// Service manages customer records and their qualification answers.
type Service struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewService creates a customers service.
func NewService(log *slog.Logger, pool *pgxpool.Pool) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		pool:   pool,
		logger: log.With(slog.String("service", "customers")),
	}
}

// FindByEmailPrefix looks up a customer for the tenant whose stored email
// starts with the extracted token. Prefix matching is a deliberate looseness
// carried over from the original matching policy: extracted tokens can carry
// formatting noise, and the permissive match tolerates it. Do not tighten to
// exact equality without a data migration. The comparison itself is literal:
// extracted tokens can contain `_` and `%`, so LIKE is not usable here.
func (s *Service) FindByEmailPrefix(ctx context.Context, tenantID, email string) (Customer, error) {
	pgTenantID, err := db.ParseUUID(tenantID)
	if err != nil {
		return Customer{}, fmt.Errorf("invalid tenant id: %w", err)
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, email, created_at FROM customers
		 WHERE tenant_id = $1 AND starts_with(email, $2)
		 ORDER BY created_at ASC
		 LIMIT 1`, pgTenantID, email)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, err
}

// Get returns a customer by ID.
func (s *Service) Get(ctx context.Context, customerID string) (Customer, error) {
	pgID, err := db.ParseUUID(customerID)
	if err != nil {
		return Customer{}, ErrCustomerNotFound
	}
	row := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, email, created_at FROM customers WHERE id = $1`, pgID)
	customer, err := scanCustomer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Customer{}, ErrCustomerNotFound
	}
	return customer, err
}

// Create inserts a customer and snapshots the given qualification questions
// into one unanswered answer row each. Questions added to the tenant later do
// not attach retroactively.
func (s *Service) Create(ctx context.Context, tenantID, email string, questions []string) (Customer, error) {
	pgTenantID, err := db.ParseUUID(tenantID)
	if err != nil {
		return Customer{}, fmt.Errorf("invalid tenant id: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Customer{}, fmt.Errorf("begin create customer: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`INSERT INTO customers (id, tenant_id, email)
		 VALUES ($1, $2, $3)
		 RETURNING id, tenant_id, email, created_at`, db.NewUUID(), pgTenantID, email)
	customer, err := scanCustomer(row)
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}

	pgCustomerID, err := db.ParseUUID(customer.ID)
	if err != nil {
		return Customer{}, err
	}
	for _, question := range questions {
		if _, err := tx.Exec(ctx,
			`INSERT INTO customer_answers (customer_id, question) VALUES ($1, $2)`,
			pgCustomerID, question); err != nil {
			return Customer{}, fmt.Errorf("snapshot question: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Customer{}, fmt.Errorf("commit create customer: %w", err)
	}
	return customer, nil
}

// RecordAnswer claims the customer's oldest unanswered question (ascending by
// question text) and stores answer on it. The claim is a single conditional
// UPDATE so two concurrent completion signals cannot answer the same row.
// Returns false when every question is already answered, or when the answer is
// blank; both are silent no-ops, not errors.
func (s *Service) RecordAnswer(ctx context.Context, customerID, answer string) (bool, error) {
	pgID, err := db.ParseUUID(customerID)
	if err != nil {
		return false, fmt.Errorf("invalid customer id: %w", err)
	}
	// A blank answer would store NULL and leave the question open while
	// still counting as an update, so reject it before the claim.
	pgAnswer := db.ToPgText(answer)
	if !pgAnswer.Valid {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE customer_answers SET answered = $2
		 WHERE id = (
		     SELECT id FROM customer_answers
		     WHERE customer_id = $1 AND answered IS NULL
		     ORDER BY question ASC
		     LIMIT 1
		     FOR UPDATE SKIP LOCKED
		 ) AND answered IS NULL`,
		pgID, pgAnswer)
	if err != nil {
		return false, fmt.Errorf("record answer: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListUnanswered returns the customer's open questions ordered by question text.
func (s *Service) ListUnanswered(ctx context.Context, customerID string) ([]Answer, error) {
	return s.listAnswers(ctx, customerID, true)
}

// ListAnswers returns every answer row for the customer ordered by question text.
func (s *Service) ListAnswers(ctx context.Context, customerID string) ([]Answer, error) {
	return s.listAnswers(ctx, customerID, false)
}

func (s *Service) listAnswers(ctx context.Context, customerID string, unansweredOnly bool) ([]Answer, error) {
	pgID, err := db.ParseUUID(customerID)
	if err != nil {
		return nil, fmt.Errorf("invalid customer id: %w", err)
	}
	query := `SELECT id, customer_id, question, answered FROM customer_answers
	          WHERE customer_id = $1`
	if unansweredOnly {
		query += ` AND answered IS NULL`
	}
	query += ` ORDER BY question ASC`

	rows, err := s.pool.Query(ctx, query, pgID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	defer rows.Close()

	answers := make([]Answer, 0)
	for rows.Next() {
		var (
			id       pgtype.UUID
			customer pgtype.UUID
			question string
			answered pgtype.Text
		)
		if err := rows.Scan(&id, &customer, &question, &answered); err != nil {
			return nil, err
		}
		entry := Answer{
			ID:         id.String(),
			CustomerID: customer.String(),
			Question:   question,
		}
		if answered.Valid {
			value := answered.String
			entry.Answered = &value
		}
		answers = append(answers, entry)
	}
	return answers, rows.Err()
}

func scanCustomer(row pgx.Row) (Customer, error) {
	var (
		id        pgtype.UUID
		tenantID  pgtype.UUID
		email     string
		createdAt pgtype.Timestamptz
	)
	if err := row.Scan(&id, &tenantID, &email, &createdAt); err != nil {
		return Customer{}, err
	}
	return Customer{
		ID:        id.String(),
		TenantID:  tenantID.String(),
		Email:     email,
		CreatedAt: db.TimeFromPg(createdAt),
	}, nil
}
