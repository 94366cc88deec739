package customers_test

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driftlinehq/driftline/internal/customers"
)

// Requires a migrated database; set TEST_POSTGRES_DSN to run.
func setupCustomersIntegrationTest(t *testing.T) (*pgxpool.Pool, *customers.Service) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("skip integration test: TEST_POSTGRES_DSN is not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Skipf("skip integration test: cannot connect to database: %v", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("skip integration test: database ping failed: %v", err)
	}
	t.Cleanup(pool.Close)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return pool, customers.NewService(logger, pool)
}

func createTenantForCustomersTest(ctx context.Context, t *testing.T, pool *pgxpool.Pool) string {
	t.Helper()
	var tenantID string
	err := pool.QueryRow(ctx,
		`INSERT INTO tenants (domain, name) VALUES ($1, 'Customers Test') RETURNING id::text`,
		fmt.Sprintf("customers-test-%s.example", t.Name()),
	).Scan(&tenantID)
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `DELETE FROM tenants WHERE id = $1`, tenantID)
	})
	return tenantID
}

func TestCreateAndFindByEmailPrefix(t *testing.T) {
	pool, svc := setupCustomersIntegrationTest(t)
	ctx := context.Background()
	tenantID := createTenantForCustomersTest(ctx, t, pool)

	created, err := svc.Create(ctx, tenantID, "jane.doe@corp.example", []string{"What is your budget?"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	// A truncated address still resolves through the prefix match.
	found, err := svc.FindByEmailPrefix(ctx, tenantID, "jane.doe@corp.exam")
	if err != nil {
		t.Fatalf("find by prefix: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("found %s, want %s", found.ID, created.ID)
	}

	_, err = svc.FindByEmailPrefix(ctx, tenantID, "nobody@nowhere.example")
	if !errors.Is(err, customers.ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}
}

func TestFindByEmailPrefixMatchesLiterally(t *testing.T) {
	pool, svc := setupCustomersIntegrationTest(t)
	ctx := context.Background()
	tenantID := createTenantForCustomersTest(ctx, t, pool)

	// An address differing only at the underscore position must not match:
	// the prefix comparison is a literal string compare, not a pattern, so
	// `_` in an extracted token matches nothing but itself.
	if _, err := svc.Create(ctx, tenantID, "janexdoe@corp.example", nil); err != nil {
		t.Fatalf("create decoy: %v", err)
	}
	_, err := svc.FindByEmailPrefix(ctx, tenantID, "jane_doe@corp.exam")
	if !errors.Is(err, customers.ErrCustomerNotFound) {
		t.Fatalf("err = %v, want ErrCustomerNotFound", err)
	}

	created, err := svc.Create(ctx, tenantID, "jane_doe@corp.example", nil)
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	found, err := svc.FindByEmailPrefix(ctx, tenantID, "jane_doe@corp.exam")
	if err != nil {
		t.Fatalf("find by prefix: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("found %s, want %s", found.ID, created.ID)
	}
}

func TestRecordAnswerClaimsInQuestionOrder(t *testing.T) {
	pool, svc := setupCustomersIntegrationTest(t)
	ctx := context.Background()
	tenantID := createTenantForCustomersTest(ctx, t, pool)

	created, err := svc.Create(ctx, tenantID, "order@corp.example", []string{
		"B: when do you want to start?",
		"A: what is your budget?",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	claimed, err := svc.RecordAnswer(ctx, created.ID, "around 5k")
	if err != nil || !claimed {
		t.Fatalf("first answer: claimed=%v err=%v", claimed, err)
	}

	open, err := svc.ListUnanswered(ctx, created.ID)
	if err != nil {
		t.Fatalf("list unanswered: %v", err)
	}
	if len(open) != 1 || open[0].Question != "B: when do you want to start?" {
		t.Fatalf("open = %+v, want only question B", open)
	}

	claimed, err = svc.RecordAnswer(ctx, created.ID, "next month")
	if err != nil || !claimed {
		t.Fatalf("second answer: claimed=%v err=%v", claimed, err)
	}

	// Nothing left to claim.
	claimed, err = svc.RecordAnswer(ctx, created.ID, "extra")
	if err != nil {
		t.Fatalf("third answer: %v", err)
	}
	if claimed {
		t.Fatal("claimed an answer with no open questions")
	}

	answers, err := svc.ListAnswers(ctx, created.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	for _, a := range answers {
		if a.Answered == nil {
			t.Fatalf("question %q still open", a.Question)
		}
	}
}
