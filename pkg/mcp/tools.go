package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pario-ai/gherkit/pkg/models"
)

type generateArgs struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions"`
	Mode         string `json:"mode"`
	Model        string `json:"model"`
	Headless     *bool  `json:"headless"`
}

type cacheClearArgs struct {
	ExpiredOnly bool `json:"expired_only"`
}

type usageArgs struct {
	RunID string `json:"run_id"`
}

// toolHandler is a function that handles a tool call.
type toolHandler func(ctx context.Context, s *Server, args json.RawMessage) ToolCallResult

// toolHandlers maps tool names to their handlers.
var toolHandlers = map[string]toolHandler{
	"gherkit_generate":    handleGenerate,
	"gherkit_cache_stats": handleCacheStats,
	"gherkit_cache_clear": handleCacheClear,
	"gherkit_files":       handleFiles,
	"gherkit_usage":       handleUsage,
	"gherkit_budget":      handleBudget,
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

// allTools is the list of tool definitions exposed via tools/list.
var allTools = []ToolDefinition{
	{
		Name:        "gherkit_generate",
		Description: "Generate Gherkin scenarios for a web page. With instructions the steps are converted directly; without them the page is explored automatically.",
		InputSchema: map[string]any{
			"type":     "object",
			"required": []string{"url"},
			"properties": map[string]any{
				"url":          str("Page to test"),
				"instructions": str("Plain-text test steps (optional)"),
				"mode":         map[string]any{"type": "string", "enum": []string{"auto", "custom"}, "description": "Override the mode picked from instructions"},
				"model":        str("Inference model (optional)"),
				"headless":     map[string]any{"type": "boolean", "description": "Run the browser headless (default true)"},
			},
		},
	},
	{
		Name:        "gherkit_cache_stats",
		Description: "Show response cache statistics (entries, expired, size, hits, misses).",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "gherkit_cache_clear",
		Description: "Remove cache entries. Removes everything unless expired_only is set.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expired_only": map[string]any{"type": "boolean", "description": "Only remove expired entries"},
			},
		},
	},
	{
		Name:        "gherkit_files",
		Description: "List generated feature files, newest first.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        "gherkit_usage",
		Description: "Show inference token usage by model and stage, or the calls of a single run.",
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"run_id": str("Show the calls of this generation run (optional)"),
			},
		},
	},
	{
		Name:        "gherkit_budget",
		Description: "Show token budget status for all configured policies.",
		InputSchema: map[string]any{"type": "object", "properties": map[string]any{}},
	},
}

func textResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

func errorResult(text string) ToolCallResult {
	return ToolCallResult{
		Content: []ContentBlock{{Type: "text", Text: text}},
		IsError: true,
	}
}

func decodeArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

func handleGenerate(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.gen == nil {
		return textResult("Generation is not configured.")
	}
	var args generateArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.URL == "" {
		return errorResult("url is required")
	}
	headless := true
	if args.Headless != nil {
		headless = *args.Headless
	}
	res, err := s.gen.Run(ctx, models.GenerationRequest{
		URL:          args.URL,
		Instructions: args.Instructions,
		Mode:         models.Mode(args.Mode),
		Model:        args.Model,
		Headless:     headless,
	})
	if err != nil {
		return errorResult("Generation failed: " + err.Error())
	}
	return textResult(formatGeneration(res))
}

func handleCacheStats(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if !s.cache.Enabled() {
		return textResult("Cache is not configured.")
	}
	stats, err := s.cache.Stats(ctx)
	if err != nil {
		return errorResult("Error fetching cache stats: " + err.Error())
	}
	return textResult(formatCacheStats(stats))
}

func handleCacheClear(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if !s.cache.Enabled() {
		return textResult("Cache is not configured.")
	}
	var args cacheClearArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	n, err := s.cache.Clear(ctx, args.ExpiredOnly)
	if err != nil {
		return errorResult("Error clearing cache: " + err.Error())
	}
	return textResult(fmt.Sprintf("Removed %d cache entries.", n))
}

func handleFiles(_ context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.files == nil {
		return textResult("Output directory is not configured.")
	}
	files, err := s.files.List()
	if err != nil {
		return errorResult("Error listing files: " + err.Error())
	}
	return textResult(formatFiles(files))
}

func handleUsage(ctx context.Context, s *Server, raw json.RawMessage) ToolCallResult {
	if s.tracker == nil {
		return textResult("Usage tracking is not configured.")
	}
	var args usageArgs
	if err := decodeArgs(raw, &args); err != nil {
		return errorResult(err.Error())
	}
	if args.RunID != "" {
		reqs, err := s.tracker.RunRequests(ctx, args.RunID)
		if err != nil {
			return errorResult("Error fetching run usage: " + err.Error())
		}
		return textResult(formatRunRequests(reqs))
	}
	rows, err := s.tracker.Summary(ctx)
	if err != nil {
		return errorResult("Error fetching usage: " + err.Error())
	}
	return textResult(formatSummary(rows))
}

func handleBudget(ctx context.Context, s *Server, _ json.RawMessage) ToolCallResult {
	if s.budget == nil {
		return textResult("Budget enforcement is not configured.")
	}
	statuses, err := s.budget.Status(ctx)
	if err != nil {
		return errorResult("Error fetching budget status: " + err.Error())
	}
	return textResult(formatBudgetStatus(statuses))
}
