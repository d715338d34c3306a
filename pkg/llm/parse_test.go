package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pario-ai/gherkit/pkg/models"
)

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, "Feature: x", stripFences("```gherkin\nFeature: x\n```\n"))
	assert.Equal(t, "plain", stripFences("  plain  "))
}

func TestParseActionPlan(t *testing.T) {
	plan, pf := ParseActionPlan("```json\n" + `{
  "hover_candidates": [{"selector": "nav a", "description": "menu"}],
  "popup_candidates": [],
  "action_plan": [
    {"action": "hover", "selector": "nav a"},
    {"action": "click", "selector": "#learn-more", "description": "open"}
  ]
}` + "\n```")
	require.Nil(t, pf)
	require.Len(t, plan.Actions, 2)
	assert.Equal(t, models.ActionClick, plan.Actions[1].Action)
	assert.Len(t, plan.HoverCandidates, 1)
}

func TestParseActionPlanFailures(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		reason string
	}{
		{"not json", "Sure! Here is the plan.", "not a JSON object"},
		{"array", `[{"action":"click"}]`, "not a JSON object"},
		{"missing plan", `{"hover_candidates": []}`, "missing"},
		{"null plan", `{"action_plan": null}`, "must be an array"},
		{"object plan", `{"action_plan": {"action": "click", "selector": "#x"}}`, "must be an array"},
		{"bad action", `{"action_plan": [{"action": "type", "selector": "#q"}]}`, "unsupported action"},
		{"empty selector", `{"action_plan": [{"action": "click", "selector": " "}]}`, "empty selector"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, pf := ParseActionPlan(tt.raw)
			require.NotNil(t, pf)
			assert.Contains(t, pf.Reason, tt.reason)
			assert.Equal(t, tt.raw, pf.Raw)
		})
	}
}

func TestParseActionPlanProse(t *testing.T) {
	plan, pf := ParseActionPlan("Here you go:\n{\"action_plan\": []}\nThanks")
	require.Nil(t, pf)
	assert.Empty(t, plan.Actions)
}

func TestParseInterpretation(t *testing.T) {
	in, pf := ParseInterpretation(`{"overall_summary": "menu opened", "failures": [{"action": "click", "selector": "#x", "reason": "missing"}]}`)
	require.Nil(t, pf)
	assert.Equal(t, "menu opened", in.OverallSummary)
	require.Len(t, in.Failures, 1)

	_, pf = ParseInterpretation("nothing useful")
	assert.NotNil(t, pf)
}

func TestParseGherkin(t *testing.T) {
	text, pf := ParseGherkin("```gherkin\nFeature: Popups\n  Scenario: open\n    When x\n    Then y\n```")
	require.Nil(t, pf)
	assert.Equal(t, "Feature: Popups\n  Scenario: open\n    When x\n    Then y", text)

	_, pf = ParseGherkin("I cannot help with that.")
	require.NotNil(t, pf)
	assert.Contains(t, pf.Reason, "Feature:")

	_, pf = ParseGherkin("Feature: empty")
	require.NotNil(t, pf)
}
