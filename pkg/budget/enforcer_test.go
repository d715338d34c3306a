package budget

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/tracker"
)

func setup(t *testing.T) (tracker.Tracker, context.Context) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "budget_test.db")
	tr, err := tracker.New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	return tr, context.Background()
}

func TestCheckUnderBudget(t *testing.T) {
	tr, ctx := setup(t)

	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o",
		PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
		CreatedAt: time.Now().UTC(),
	})

	e := New([]models.BudgetPolicy{
		{MaxTokens: 1000, Period: models.BudgetDaily},
	}, tr)

	if err := e.Check(ctx, "gpt-4o"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestCheckExceeded(t *testing.T) {
	tr, ctx := setup(t)

	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o",
		PromptTokens: 500, CompletionTokens: 600, TotalTokens: 1100,
		CreatedAt: time.Now().UTC(),
	})

	e := New([]models.BudgetPolicy{
		{MaxTokens: 1000, Period: models.BudgetDaily},
	}, tr)

	err := e.Check(ctx, "gpt-4o")
	if err == nil {
		t.Fatal("expected budget exceeded error")
	}
	if !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestModelPolicy(t *testing.T) {
	tr, ctx := setup(t)

	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o", TotalTokens: 600, CreatedAt: time.Now().UTC(),
	})

	e := New([]models.BudgetPolicy{
		{Model: "gpt-4o", MaxTokens: 500, Period: models.BudgetDaily},
	}, tr)

	if err := e.Check(ctx, "gpt-4o-mini"); err != nil {
		t.Errorf("policy for another model must not apply: %v", err)
	}
	if err := e.Check(ctx, "gpt-4o"); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected ErrBudgetExceeded, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	tr, ctx := setup(t)

	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o",
		PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
		CreatedAt: time.Now().UTC(),
	})

	e := New([]models.BudgetPolicy{
		{MaxTokens: 1000, Period: models.BudgetDaily},
		{Model: "gpt-4o", MaxTokens: 100, Period: models.BudgetMonthly},
	}, tr)

	statuses, err := e.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("expected 2 statuses, got %d", len(statuses))
	}
	if statuses[0].Used != 150 {
		t.Errorf("expected 150 used, got %d", statuses[0].Used)
	}
	if statuses[0].Remaining != 850 {
		t.Errorf("expected 850 remaining, got %d", statuses[0].Remaining)
	}
	if statuses[1].Remaining != 0 {
		t.Errorf("remaining must not go negative, got %d", statuses[1].Remaining)
	}
}

func TestNilEnforcer(t *testing.T) {
	var e *Enforcer
	if err := e.Check(context.Background(), "gpt-4o"); err != nil {
		t.Errorf("nil enforcer must allow, got %v", err)
	}
}

func TestPeriodStart(t *testing.T) {
	now := time.Date(2026, 7, 15, 13, 45, 0, 0, time.UTC)
	if got := periodStart(models.BudgetDaily, now); !got.Equal(time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("daily start = %v", got)
	}
	if got := periodStart(models.BudgetMonthly, now); !got.Equal(time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("monthly start = %v", got)
	}
}
