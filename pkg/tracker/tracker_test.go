package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/gherkit/pkg/models"
)

func newTestTracker(t *testing.T) *SQLiteTracker {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	tr, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func TestRecordAndRecent(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	rec := models.UsageRecord{
		RunID:            "run-1",
		Stage:            "plan",
		Model:            "gpt-4o",
		PromptTokens:     100,
		CompletionTokens: 50,
		CreatedAt:        now,
	}
	if err := tr.Record(ctx, rec); err != nil {
		t.Fatal(err)
	}

	records, err := tr.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].TotalTokens != 150 {
		t.Errorf("expected total to default to 150, got %d", records[0].TotalTokens)
	}
	if records[0].RunID != "run-1" || records[0].Stage != "plan" {
		t.Errorf("unexpected record: %+v", records[0])
	}
}

func TestTotalSince(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i := range 3 {
		_ = tr.Record(ctx, models.UsageRecord{
			Stage: "plan", Model: "gpt-4o",
			PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150,
			CreatedAt: now.Add(time.Duration(i) * time.Second),
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o-mini", TotalTokens: 10, CreatedAt: now,
	})
	_ = tr.Record(ctx, models.UsageRecord{
		Stage: "plan", Model: "gpt-4o", TotalTokens: 1000, CreatedAt: now.Add(-48 * time.Hour),
	})

	total, err := tr.TotalSince(ctx, "gpt-4o", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if total != 450 {
		t.Errorf("expected 450, got %d", total)
	}

	total, err = tr.TotalSince(ctx, "", now.Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if total != 460 {
		t.Errorf("expected 460 across models, got %d", total)
	}
}

func TestSummary(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	_ = tr.Record(ctx, models.UsageRecord{Stage: "plan", Model: "gpt-4o", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150})
	_ = tr.Record(ctx, models.UsageRecord{Stage: "plan", Model: "gpt-4o", PromptTokens: 200, CompletionTokens: 100, TotalTokens: 300})
	_ = tr.Record(ctx, models.UsageRecord{Stage: "gherkin", Model: "gpt-4o", PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15})

	summaries, err := tr.Summary(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 summaries, got %d", len(summaries))
	}
	// Ordered by model, stage.
	if summaries[0].Stage != "gherkin" || summaries[0].TotalTokens != 15 {
		t.Errorf("unexpected first summary: %+v", summaries[0])
	}
	if summaries[1].RequestCount != 2 || summaries[1].TotalTokens != 450 {
		t.Errorf("unexpected plan summary: %+v", summaries[1])
	}
}

func TestRunRequests(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()
	now := time.Now().UTC()

	stages := []string{"plan", "interpret", "gherkin"}
	for i, s := range stages {
		_ = tr.Record(ctx, models.UsageRecord{
			RunID: "run-a", Stage: s, Model: "gpt-4o", TotalTokens: 10 * (i + 1),
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	_ = tr.Record(ctx, models.UsageRecord{RunID: "run-b", Stage: "gherkin", Model: "gpt-4o", TotalTokens: 1})

	reqs, err := tr.RunRequests(ctx, "run-a")
	if err != nil {
		t.Fatal(err)
	}
	if len(reqs) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(reqs))
	}
	for i, r := range reqs {
		if r.Seq != i+1 || r.Stage != stages[i] {
			t.Errorf("request %d: %+v", i, r)
		}
	}
}
