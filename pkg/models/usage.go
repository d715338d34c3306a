package models

import "time"

// Usage represents token usage reported by the inference service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord tracks token usage of one outbound inference call.
type UsageRecord struct {
	ID               int64     `json:"id"`
	RunID            string    `json:"run_id,omitempty"`
	Stage            string    `json:"stage"`
	Model            string    `json:"model"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunRequest is a single inference call within a generation run.
type RunRequest struct {
	Seq              int       `json:"seq"`
	Stage            string    `json:"stage"`
	Model            string    `json:"model"`
	CreatedAt        time.Time `json:"created_at"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
}

// UsageSummary aggregates usage across calls.
type UsageSummary struct {
	Model           string `json:"model"`
	Stage           string `json:"stage"`
	RequestCount    int    `json:"request_count"`
	TotalPrompt     int    `json:"total_prompt"`
	TotalCompletion int    `json:"total_completion"`
	TotalTokens     int    `json:"total_tokens"`
}
