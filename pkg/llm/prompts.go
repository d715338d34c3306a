package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pario-ai/gherkit/pkg/models"
)

// Schema hints for structured responses.
const (
	SchemaActionPlan     = "action_plan"
	SchemaInterpretation = "interpretation"
	SchemaGherkin        = "gherkin"
)

// Pipeline stages that call the inference service.
const (
	StagePlan      = "plan"
	StageInterpret = "interpret"
	StageGherkin   = "gherkin"
	StageConvert   = "convert"
)

const (
	jsonSystemPrompt    = "You are a web testing expert. Return only valid JSON."
	gherkinSystemPrompt = "You are a BDD testing expert. Generate proper Gherkin scenarios."
	convertSystemPrompt = "You are a BDD testing expert. Generate proper Gherkin scenarios from plain text test steps."
)

const planPrompt = `You are an expert in web UI testing. Analyze the following HTML and identify:

1. Hover candidates: elements that likely reveal content on hover (navigation menus, dropdowns, tooltips, info icons).
2. Popup candidates: elements that likely open a popup or modal when clicked.
3. An action plan: an ordered sequence of hover and click actions that exercises these interactions.

Every element needs a valid CSS selector (classes, ids or attributes) and a short description.
The only allowed actions are "hover" and "click".

Return ONLY a JSON object in exactly this format:
{
  "hover_candidates": [{"selector": "nav .menu-item", "description": "Main navigation menu item"}],
  "popup_candidates": [{"selector": "button[data-toggle='modal']", "description": "Modal trigger button"}],
  "action_plan": [
    {"action": "hover", "selector": "nav .menu-item", "description": "Hover over main menu to reveal dropdown"},
    {"action": "click", "selector": "button[data-toggle='modal']", "description": "Click to open modal popup"}
  ]
}

HTML to analyze:
%s

Return only the JSON, no other text.`

const interpretPrompt = `You are analyzing the results of automated web interactions.

The page at %s had this HTML structure (reduced):
%s

The following actions were executed in order:
%s

Explain what happened:
1. Hover interactions: which dropdowns or tooltips appeared and what they revealed.
2. Popup interactions: which popups or modals appeared, their titles and purpose.
3. Navigation changes: which URLs changed and what triggered it.
4. Failures: which actions failed and why.
5. What would be important to validate in a test.

Return ONLY a JSON object in this format:
{
  "hover_interactions": [{"element": "...", "result": "...", "revealed_content": "...", "test_worthy": true}],
  "popup_interactions": [{"element": "...", "popup_appeared": true, "popup_title": "...", "popup_purpose": "...", "test_worthy": true}],
  "navigation_changes": [{"from_url": "...", "to_url": "...", "trigger": "...", "test_worthy": false}],
  "failures": [{"action": "...", "selector": "...", "reason": "..."}],
  "overall_summary": "Brief summary of what happened"
}

Return only the JSON, no other text.`

const gherkinPrompt = `You are a BDD testing expert. Generate Gherkin scenarios for the following test execution.

URL tested: %s

Initial analysis:
%s

Execution results:
%s

Interpretation:
%s

Generate two scenarios:
1. Hover-based interaction validation (dropdown, navigation or tooltip).
2. Popup or modal validation.

Requirements:
- Use proper Gherkin syntax (Feature, Scenario, Given, When, Then).
- Make scenarios specific and actionable.
- Use the actual selectors and content observed during execution.
- Make assertions meaningful (visible elements, text content, URLs).
- If no valid interactions were found, write realistic example scenarios for this page.

Return the complete .feature file content and nothing else.`

const convertPrompt = `You are a BDD testing expert. Convert the following plain-text test steps into proper Gherkin.

Base URL: %s

Page summary: %s

User-provided test steps:
%s

Requirements:
1. Create a Feature with a descriptive name.
2. Break the steps into one or more Scenarios; separate flows become separate scenarios.
3. Use Given/When/Then/And syntax, with one When/Then pair per action and its expected outcome.
4. Be specific about elements (button names, visible text).
5. Put common setup in a Background section.

Example:
Feature: [Descriptive feature name]

  Background:
    Given the user navigates to "[url]"

  Scenario: [Scenario name]
    When the user clicks the "[button name]" button
    Then a popup should appear with title "[title text]"
    When the user clicks the "[button name]" button
    Then the popup should close

Return ONLY the Gherkin content, no explanations.`

// schemaDescriptions are used in the clarifying follow-up after a malformed reply.
var schemaDescriptions = map[string]string{
	SchemaActionPlan:     `a single JSON object with "hover_candidates", "popup_candidates" and "action_plan" arrays, where every action has "action" set to "hover" or "click" and a non-empty "selector"`,
	SchemaInterpretation: `a single JSON object with "hover_interactions", "popup_interactions", "navigation_changes", "failures" and "overall_summary"`,
	SchemaGherkin:        `only Gherkin text starting with "Feature:" and containing at least one "Scenario:"`,
}

func clarifyPrompt(schema string, pf *ParseFailure) string {
	return fmt.Sprintf("Your previous reply could not be used: %s.\nReply again with %s. Do not add any other text.",
		pf.Reason, schemaDescriptions[schema])
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func pageSummary(p *models.Page) string {
	if p == nil {
		return "unavailable"
	}
	var b strings.Builder
	if p.Meta.Title != "" {
		fmt.Fprintf(&b, "title %q, ", p.Meta.Title)
	}
	fmt.Fprintf(&b, "%d links, %d buttons, %d forms, %d dialogs", p.Meta.Links, p.Meta.Buttons, p.Meta.Forms, p.Meta.Dialogs)
	return b.String()
}
