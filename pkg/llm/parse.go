package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/gherkit/pkg/models"
)

// ParseFailure describes model output that did not match its schema.
// Parsers return either a value or a failure, never both.
type ParseFailure struct {
	Raw    string
	Reason string
}

func fail(raw, format string, args ...any) *ParseFailure {
	return &ParseFailure{Raw: raw, Reason: fmt.Sprintf(format, args...)}
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// jsonObject returns the outermost JSON object in s, tolerating prose around it.
func jsonObject(s string) string {
	s = stripFences(s)
	if strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[") {
		return s
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return s
	}
	return s[start : end+1]
}

// ParseActionPlan validates an action_plan response.
func ParseActionPlan(raw string) (models.ActionPlan, *ParseFailure) {
	body := jsonObject(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &fields); err != nil {
		return models.ActionPlan{}, fail(raw, "not a JSON object: %v", err)
	}
	actions, ok := fields["action_plan"]
	if !ok {
		return models.ActionPlan{}, fail(raw, `missing "action_plan"`)
	}
	if !bytes.HasPrefix(bytes.TrimSpace(actions), []byte("[")) {
		return models.ActionPlan{}, fail(raw, `"action_plan" must be an array`)
	}

	var plan models.ActionPlan
	if err := json.Unmarshal([]byte(body), &plan); err != nil {
		return models.ActionPlan{}, fail(raw, "invalid action plan: %v", err)
	}
	for i, a := range plan.Actions {
		if !a.Action.Valid() {
			return models.ActionPlan{}, fail(raw, "action_plan[%d]: unsupported action %q", i, a.Action)
		}
		if strings.TrimSpace(a.Selector) == "" {
			return models.ActionPlan{}, fail(raw, "action_plan[%d]: empty selector", i)
		}
	}
	return plan, nil
}

// ParseInterpretation validates an interpretation response.
func ParseInterpretation(raw string) (models.Interpretation, *ParseFailure) {
	body := jsonObject(raw)
	if !strings.HasPrefix(body, "{") {
		return models.Interpretation{}, fail(raw, "not a JSON object")
	}
	var in models.Interpretation
	if err := json.Unmarshal([]byte(body), &in); err != nil {
		return models.Interpretation{}, fail(raw, "invalid interpretation: %v", err)
	}
	return in, nil
}

// ParseGherkin validates a feature file response.
func ParseGherkin(raw string) (string, *ParseFailure) {
	text := stripFences(raw)
	if !strings.Contains(text, "Feature:") {
		return "", fail(raw, `no "Feature:" line`)
	}
	if !strings.Contains(text, "Scenario") {
		return "", fail(raw, "no scenarios")
	}
	return text, nil
}
