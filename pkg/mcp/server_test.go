package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pario-ai/gherkit/pkg/budget"
	"github.com/pario-ai/gherkit/pkg/cache"
	"github.com/pario-ai/gherkit/pkg/cache/sqlite"
	"github.com/pario-ai/gherkit/pkg/models"
	"github.com/pario-ai/gherkit/pkg/scenario"
)

// fakeTracker implements tracker.Tracker for testing.
type fakeTracker struct {
	summaries []models.UsageSummary
	requests  []models.RunRequest
	total     int64
}

func (f *fakeTracker) Record(context.Context, models.UsageRecord) error { return nil }
func (f *fakeTracker) TotalSince(context.Context, string, time.Time) (int64, error) {
	return f.total, nil
}
func (f *fakeTracker) Recent(context.Context, int) ([]models.UsageRecord, error) { return nil, nil }
func (f *fakeTracker) Summary(context.Context) ([]models.UsageSummary, error) {
	return f.summaries, nil
}
func (f *fakeTracker) RunRequests(context.Context, string) ([]models.RunRequest, error) {
	return f.requests, nil
}
func (f *fakeTracker) Close() error { return nil }

type fakeGenerator struct {
	got models.GenerationRequest
	err error
}

func (g *fakeGenerator) Run(_ context.Context, req models.GenerationRequest) (*models.GenerationResult, error) {
	g.got = req
	if g.err != nil {
		return nil, g.err
	}
	return &models.GenerationResult{
		RunID:       "run-1",
		OutputPath:  "output/custom_generated_x.feature",
		GherkinText: "Feature: Popup",
	}, nil
}

func newCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	c := cache.New(store, time.Hour)
	t.Cleanup(func() { c.Close() })
	return c
}

func sendAndReceive(t *testing.T, srv *Server, req Request) Response {
	t.Helper()
	line, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	line = append(line, '\n')

	var out bytes.Buffer
	if err := srv.Run(context.Background(), bytes.NewReader(line), &out); err != nil {
		t.Fatal(err)
	}

	var resp Response
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, out.String())
	}
	return resp
}

func callTool(t *testing.T, srv *Server, name, args string) ToolCallResult {
	t.Helper()
	params, _ := json.Marshal(ToolCallParams{Name: name, Arguments: json.RawMessage(args)})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`3`),
		Method:  "tools/call",
		Params:  params,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}
	data, _ := json.Marshal(resp.Result)
	var result ToolCallResult
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatal(err)
	}
	if len(result.Content) == 0 {
		t.Fatal("expected content")
	}
	return result
}

func TestInitialize(t *testing.T) {
	srv := New(Deps{Version: "test"})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`1`),
		Method:  "initialize",
	})

	if resp.Error != nil {
		t.Fatalf("unexpected error: %v", resp.Error)
	}

	data, _ := json.Marshal(resp.Result)
	var result InitializeResult
	json.Unmarshal(data, &result)

	if result.ProtocolVersion != "2024-11-05" {
		t.Errorf("protocol version = %s, want 2024-11-05", result.ProtocolVersion)
	}
	if result.ServerInfo.Name != "gherkit" || result.ServerInfo.Version != "test" {
		t.Errorf("server info = %+v", result.ServerInfo)
	}
}

func TestToolsList(t *testing.T) {
	srv := New(Deps{})
	resp := sendAndReceive(t, srv, Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`2`),
		Method:  "tools/list",
	})

	data, _ := json.Marshal(resp.Result)
	var result ToolsListResult
	json.Unmarshal(data, &result)

	if len(result.Tools) != len(toolHandlers) {
		t.Errorf("got %d tools, want %d", len(result.Tools), len(toolHandlers))
	}
	for _, tool := range result.Tools {
		if _, ok := toolHandlers[tool.Name]; !ok {
			t.Errorf("listed tool %s has no handler", tool.Name)
		}
	}
}

func TestToolCallGenerate(t *testing.T) {
	gen := &fakeGenerator{}
	srv := New(Deps{Generator: gen})

	result := callTool(t, srv, "gherkit_generate", `{"url":"https://example.test/page","instructions":"Click Learn More"}`)
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", result.Text())
	}
	if !strings.Contains(result.Text(), "Feature: Popup") || !strings.Contains(result.Text(), "run-1") {
		t.Errorf("unexpected output: %s", result.Text())
	}
	if gen.got.Instructions != "Click Learn More" || !gen.got.Headless {
		t.Errorf("request = %+v", gen.got)
	}
}

func TestToolCallGenerateErrors(t *testing.T) {
	srv := New(Deps{Generator: &fakeGenerator{err: errors.New("MARKUP_FETCHED: unreachable")}})

	if r := callTool(t, srv, "gherkit_generate", `{}`); !r.IsError {
		t.Error("expected isError=true for missing url")
	}
	r := callTool(t, srv, "gherkit_generate", `{"url":"https://down.test"}`)
	if !r.IsError || !strings.Contains(r.Text(), "unreachable") {
		t.Errorf("expected generation error, got: %s", r.Text())
	}
}

func TestToolCallCache(t *testing.T) {
	c := newCache(t)
	ctx := context.Background()
	if err := c.Put(ctx, models.KindHTMLFetch, cache.HTMLInputs("https://example.test"), "<html></html>", time.Hour); err != nil {
		t.Fatal(err)
	}
	srv := New(Deps{Cache: c})

	text := callTool(t, srv, "gherkit_cache_stats", "").Text()
	if !strings.Contains(text, "Entries:  1") || !strings.Contains(text, "sqlite") {
		t.Errorf("unexpected cache stats output: %s", text)
	}

	text = callTool(t, srv, "gherkit_cache_clear", `{"expired_only":true}`).Text()
	if !strings.Contains(text, "Removed 0") {
		t.Errorf("unexpected clear output: %s", text)
	}
	text = callTool(t, srv, "gherkit_cache_clear", `{}`).Text()
	if !strings.Contains(text, "Removed 1") {
		t.Errorf("unexpected clear output: %s", text)
	}
}

func TestToolCallNotConfigured(t *testing.T) {
	srv := New(Deps{})
	for _, name := range []string{"gherkit_generate", "gherkit_cache_stats", "gherkit_cache_clear", "gherkit_files", "gherkit_usage", "gherkit_budget"} {
		result := callTool(t, srv, name, "")
		if !strings.Contains(result.Text(), "not configured") {
			t.Errorf("%s: expected 'not configured', got: %s", name, result.Text())
		}
	}
}

func TestToolCallFiles(t *testing.T) {
	w := scenario.NewWriter(t.TempDir(), nil)
	art, err := w.Write(models.ModeCustom, "Feature: X", "")
	if err != nil {
		t.Fatal(err)
	}
	srv := New(Deps{Files: w})

	text := callTool(t, srv, "gherkit_files", "").Text()
	if !strings.Contains(text, art.Filename) {
		t.Errorf("expected %s in output, got: %s", art.Filename, text)
	}
}

func TestToolCallUsage(t *testing.T) {
	tr := &fakeTracker{
		summaries: []models.UsageSummary{
			{Model: "gpt-4o", Stage: "plan", RequestCount: 10, TotalPrompt: 500, TotalCompletion: 200, TotalTokens: 700},
		},
		requests: []models.RunRequest{
			{Seq: 1, Stage: "convert", PromptTokens: 100, CompletionTokens: 50, TotalTokens: 150},
		},
	}
	srv := New(Deps{Tracker: tr})

	text := callTool(t, srv, "gherkit_usage", `{}`).Text()
	if !strings.Contains(text, "gpt-4o") || !strings.Contains(text, "700") {
		t.Errorf("unexpected summary: %s", text)
	}
	text = callTool(t, srv, "gherkit_usage", `{"run_id":"abc-123"}`).Text()
	if !strings.Contains(text, "convert") || !strings.Contains(text, "150") {
		t.Errorf("unexpected run detail: %s", text)
	}
}

func TestToolCallBudget(t *testing.T) {
	tr := &fakeTracker{total: 250}
	enf := budget.New([]models.BudgetPolicy{{MaxTokens: 1000, Period: models.BudgetDaily}}, tr)
	srv := New(Deps{Tracker: tr, Budget: enf})

	text := callTool(t, srv, "gherkit_budget", "").Text()
	if !strings.Contains(text, "(all)") || !strings.Contains(text, "25.0%") {
		t.Errorf("unexpected budget output: %s", text)
	}
}

func TestUnknownTool(t *testing.T) {
	result := callTool(t, New(Deps{}), "pario_stats", "")
	if !result.IsError {
		t.Error("expected isError=true for unknown tool")
	}
}

func TestNotificationNoResponse(t *testing.T) {
	srv := New(Deps{})

	line, _ := json.Marshal(Request{
		JSONRPC: "2.0",
		Method:  "notifications/initialized",
	})
	line = append(line, '\n')

	var out bytes.Buffer
	_ = srv.Run(context.Background(), bytes.NewReader(line), &out)

	if out.Len() != 0 {
		t.Errorf("expected no output for notification, got: %s", out.String())
	}
}

func TestUnknownMethod(t *testing.T) {
	resp := sendAndReceive(t, New(Deps{}), Request{
		JSONRPC: "2.0",
		ID:      json.RawMessage(`9`),
		Method:  "unknown/method",
	})

	if resp.Error == nil {
		t.Fatal("expected error for unknown method")
	}
	if resp.Error.Code != CodeMethodNotFound {
		t.Errorf("error code = %d, want %d", resp.Error.Code, CodeMethodNotFound)
	}
}

func TestInvalidVersion(t *testing.T) {
	resp := sendAndReceive(t, New(Deps{}), Request{JSONRPC: "1.0", ID: json.RawMessage(`10`), Method: "ping"})
	if resp.Error == nil || resp.Error.Code != CodeInvalidRequest {
		t.Fatalf("expected invalid request error, got %+v", resp.Error)
	}
}
