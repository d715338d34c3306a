package mcp

import (
	"fmt"
	"strings"

	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/scenario"
)

// formatSummary formats usage summaries as a text table.
func formatSummary(rows []models.UsageSummary) string {
	if len(rows) == 0 {
		return "No usage data found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-25s %-10s %8s %10s %10s %10s\n",
		"Model", "Stage", "Requests", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 78) + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "%-25s %-10s %8d %10d %10d %10d\n",
			r.Model, r.Stage, r.RequestCount, r.TotalPrompt, r.TotalCompletion, r.TotalTokens)
	}
	return b.String()
}

// formatRunRequests formats the calls of one run as a text table.
func formatRunRequests(reqs []models.RunRequest) string {
	if len(reqs) == 0 {
		return "No inference calls found for this run."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%4s  %-20s %-10s %10s %10s %10s\n",
		"Seq", "Time", "Stage", "Prompt", "Completion", "Total")
	b.WriteString(strings.Repeat("-", 70) + "\n")
	for _, r := range reqs {
		fmt.Fprintf(&b, "%4d  %-20s %-10s %10d %10d %10d\n",
			r.Seq,
			r.CreatedAt.Format("2006-01-02 15:04:05"),
			r.Stage, r.PromptTokens, r.CompletionTokens, r.TotalTokens)
	}
	return b.String()
}

// formatBudgetStatus formats budget statuses as a text table.
func formatBudgetStatus(statuses []models.BudgetStatus) string {
	if len(statuses) == 0 {
		return "No budget policies found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-8s %12s %12s %12s %6s\n",
		"Model", "Period", "Max Tokens", "Used", "Remaining", "Usage%")
	b.WriteString(strings.Repeat("-", 74) + "\n")
	for _, s := range statuses {
		model := s.Policy.Model
		if model == "" {
			model = "(all)"
		}
		pct := float64(0)
		if s.Policy.MaxTokens > 0 {
			pct = float64(s.Used) / float64(s.Policy.MaxTokens) * 100
		}
		fmt.Fprintf(&b, "%-20s %-8s %12d %12d %12d %5.1f%%\n",
			model, s.Policy.Period, s.Policy.MaxTokens, s.Used, s.Remaining, pct)
	}
	return b.String()
}

// formatCacheStats formats cache stats as text.
func formatCacheStats(stats models.CacheStats) string {
	total := stats.Hits + stats.Misses
	hitRate := float64(0)
	if total > 0 {
		hitRate = float64(stats.Hits) / float64(total) * 100
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Cache Statistics (%s, ttl %s)\n", stats.Backend, stats.TTL)
	fmt.Fprintf(&b, "  Entries:  %d (%d expired)\n", stats.Entries, stats.Expired)
	fmt.Fprintf(&b, "  Size:     %d bytes\n", stats.PayloadBytes)
	for _, kind := range []models.CacheKind{models.KindHTMLFetch, models.KindLLMCompletion} {
		if n, ok := stats.ByKind[kind]; ok {
			fmt.Fprintf(&b, "  %-15s %d\n", string(kind)+":", n)
		}
	}
	fmt.Fprintf(&b, "  Hits:     %d\n  Misses:   %d\n  Hit Rate: %.1f%%\n", stats.Hits, stats.Misses, hitRate)
	return b.String()
}

// formatFiles formats generated feature files as a text table.
func formatFiles(files []scenario.FileInfo) string {
	if len(files) == 0 {
		return "No feature files generated yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-50s %8s  %s\n", "File", "Bytes", "Modified")
	b.WriteString(strings.Repeat("-", 80) + "\n")
	for _, f := range files {
		fmt.Fprintf(&b, "%-50s %8d  %s\n", f.Filename, f.Size, f.Modified.Format("2006-01-02 15:04:05"))
	}
	return b.String()
}

// formatGeneration reports a finished run followed by the feature text.
func formatGeneration(res *models.GenerationResult) string {
	return fmt.Sprintf("Run %s wrote %s\n\n%s", res.RunID, res.OutputPath, res.GherkinText)
}
