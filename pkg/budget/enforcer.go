package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/tracker"
)

// ErrBudgetExceeded is returned when an inference call would exceed the budget.
var ErrBudgetExceeded = errors.New("budget exceeded")

// Enforcer checks token usage against budget policies. A nil *Enforcer
// allows everything.
type Enforcer struct {
	policies []models.BudgetPolicy
	tracker  tracker.Tracker
	now      func() time.Time
}

// New creates an Enforcer with the given policies and tracker.
func New(policies []models.BudgetPolicy, t tracker.Tracker) *Enforcer {
	return &Enforcer{policies: policies, tracker: t, now: time.Now}
}

// Check returns ErrBudgetExceeded if any policy covering model is used up.
func (e *Enforcer) Check(ctx context.Context, model string) error {
	if e == nil {
		return nil
	}
	for _, p := range e.policies {
		if p.Model != "" && p.Model != model {
			continue
		}
		used, err := e.used(ctx, p)
		if err != nil {
			return fmt.Errorf("budget check: %w", err)
		}
		if used >= p.MaxTokens {
			return fmt.Errorf("%w: %d/%d tokens (%s)", ErrBudgetExceeded, used, p.MaxTokens, describe(p))
		}
	}
	return nil
}

// Status returns usage against every policy.
func (e *Enforcer) Status(ctx context.Context) ([]models.BudgetStatus, error) {
	if e == nil {
		return nil, nil
	}
	statuses := make([]models.BudgetStatus, 0, len(e.policies))
	for _, p := range e.policies {
		used, err := e.used(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("budget status: %w", err)
		}
		remaining := p.MaxTokens - used
		if remaining < 0 {
			remaining = 0
		}
		statuses = append(statuses, models.BudgetStatus{
			Policy:    p,
			Used:      used,
			Remaining: remaining,
		})
	}
	return statuses, nil
}

func (e *Enforcer) used(ctx context.Context, p models.BudgetPolicy) (int64, error) {
	return e.tracker.TotalSince(ctx, p.Model, periodStart(p.Period, e.now()))
}

func describe(p models.BudgetPolicy) string {
	if p.Model == "" {
		return string(p.Period) + ", all models"
	}
	return string(p.Period) + ", " + p.Model
}

func periodStart(period models.BudgetPeriod, now time.Time) time.Time {
	now = now.UTC()
	switch period {
	case models.BudgetMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default: // daily
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	}
}
