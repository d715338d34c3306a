// Package llmtest provides a scripted Completer for tests.
package llmtest

import (
	"context"
	"errors"
	"sync"

	"github.com/pario-ai/gherkit/pkg/llm"
	"github.com/pario-ai/gherkit/pkg/models"
)

// ErrExhausted is returned once a scripted completer has no replies left.
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Completer answers calls from a script and counts them.
type Completer struct {
	// Reply, when set, computes the answer for each call.
	Reply func(req llm.Request) (string, error)

	mu       sync.Mutex
	script   []string
	requests []llm.Request
}

// New returns a Completer that answers with replies in order.
func New(replies ...string) *Completer {
	return &Completer{script: replies}
}

// Func returns a Completer that answers with fn.
func Func(fn func(req llm.Request) (string, error)) *Completer {
	return &Completer{Reply: fn}
}

func (c *Completer) Complete(_ context.Context, req llm.Request) (llm.Response, error) {
	c.mu.Lock()
	c.requests = append(c.requests, req)
	fn := c.Reply
	var (
		content string
		err     error
	)
	if fn == nil {
		if len(c.script) == 0 {
			err = ErrExhausted
		} else {
			content, c.script = c.script[0], c.script[1:]
		}
	}
	c.mu.Unlock()

	if fn != nil {
		content, err = fn(req)
	}
	if err != nil {
		return llm.Response{}, &models.LLMTransportError{Model: req.Model, Err: err}
	}
	return llm.Response{
		Content: content,
		Model:   req.Model,
		Usage:   models.Usage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
	}, nil
}

// Calls is the number of outbound calls received.
func (c *Completer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}

// Requests returns a copy of every request received.
func (c *Completer) Requests() []llm.Request {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]llm.Request(nil), c.requests...)
}
