package models

import "fmt"

// ExtractionError means the page could not be loaded. It is fatal for a run.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.URL, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// LLMTransportError is a network or authentication failure talking to the inference service.
type LLMTransportError struct {
	Model string
	Err   error
}

func (e *LLMTransportError) Error() string {
	return fmt.Sprintf("inference call (%s): %v", e.Model, e.Err)
}

func (e *LLMTransportError) Unwrap() error { return e.Err }

// LLMResponseError is returned when the model's output stays malformed after the clarifying retry.
type LLMResponseError struct {
	Schema   string
	Raw      string
	Reason   string
	Attempts int
}

func (e *LLMResponseError) Error() string {
	return fmt.Sprintf("malformed %s response after %d attempt(s): %s", e.Schema, e.Attempts, e.Reason)
}

// ActionExecutionError describes a failed action. It is recorded, never propagated.
type ActionExecutionError struct {
	Action   ActionType
	Selector string
	Err      error
}

func (e *ActionExecutionError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Action, e.Selector, e.Err)
}

func (e *ActionExecutionError) Unwrap() error { return e.Err }

// CacheError is a storage failure inside a cache backend.
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }
