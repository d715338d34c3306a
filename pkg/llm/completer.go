// Package llm talks to the inference service: it builds prompts, caches
// completions, validates structured output and records token usage.
package llm

import (
	"context"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Chat roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string
	Content string
}

// Request is a single chat completion call.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	// JSON asks the service for a JSON object response.
	JSON bool
}

// Response is the raw text of a completion and its token usage.
type Response struct {
	Content string
	Model   string
	Usage   models.Usage
}

// Completer performs one outbound inference call. Transport and
// authentication failures are returned as *models.LLMTransportError.
type Completer interface {
	Complete(ctx context.Context, req Request) (Response, error)
}
