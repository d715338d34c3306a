package models

import "slices"

// ActionType is an interaction the executor knows how to perform.
type ActionType string

const (
	ActionHover ActionType = "hover"
	ActionClick ActionType = "click"
)

// Valid reports whether the executor supports the action.
func (a ActionType) Valid() bool {
	return a == ActionHover || a == ActionClick
}

// Candidate is an element the LLM thinks is worth interacting with.
type Candidate struct {
	Selector    string `json:"selector"`
	Description string `json:"description"`
}

// PlannedAction is one step of an action plan.
type PlannedAction struct {
	Action      ActionType `json:"action"`
	Selector    string     `json:"selector"`
	Description string     `json:"description,omitempty"`
}

// ActionPlan is the validated structured output of the planning call.
type ActionPlan struct {
	HoverCandidates []Candidate     `json:"hover_candidates"`
	PopupCandidates []Candidate     `json:"popup_candidates"`
	Actions         []PlannedAction `json:"action_plan"`
}

// Effect is a side effect observed after an action.
type Effect string

const (
	EffectElementAppeared Effect = "element_appeared"
	EffectURLChanged      Effect = "url_changed"
	EffectPopupOpened     Effect = "popup_opened"
	EffectPopupClosed     Effect = "popup_closed"
)

// Effects is a set of observed effects kept in sorted order.
type Effects []Effect

// Add inserts e if it is not already present.
func (s *Effects) Add(e Effect) {
	if s.Has(e) {
		return
	}
	*s = append(*s, e)
	slices.Sort(*s)
}

// Has reports whether e was observed.
func (s Effects) Has(e Effect) bool {
	return slices.Contains(s, e)
}

// Popup describes a modal or dialog that was visible after an action.
type Popup struct {
	Selector string   `json:"selector"`
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"text,omitempty"`
	Buttons  []string `json:"buttons,omitempty"`
}

// ActionResult records what happened when one planned action was attempted.
type ActionResult struct {
	Index         int        `json:"index"`
	Action        ActionType `json:"action"`
	Target        string     `json:"target"`
	Description   string     `json:"description,omitempty"`
	Succeeded     bool       `json:"succeeded"`
	Effects       Effects    `json:"observed_effects"`
	ErrorDetail   string     `json:"error_detail,omitempty"`
	URLBefore     string     `json:"url_before,omitempty"`
	URLAfter      string     `json:"url_after,omitempty"`
	VisibleBefore int        `json:"visible_before,omitempty"`
	VisibleAfter  int        `json:"visible_after,omitempty"`
	Popup         *Popup     `json:"popup,omitempty"`
}

// Interpretation is the LLM's reading of executed actions (or of user instructions in custom mode).
type Interpretation struct {
	HoverInteractions []HoverInteraction `json:"hover_interactions"`
	PopupInteractions []PopupInteraction `json:"popup_interactions"`
	NavigationChanges []NavigationChange `json:"navigation_changes"`
	Failures          []Failure          `json:"failures"`
	OverallSummary    string             `json:"overall_summary"`
	// Narrative holds user-supplied steps when the interpretation was not produced by the LLM.
	Narrative string `json:"narrative,omitempty"`
}

type HoverInteraction struct {
	Element         string `json:"element"`
	Result          string `json:"result"`
	RevealedContent string `json:"revealed_content"`
	TestWorthy      bool   `json:"test_worthy"`
}

type PopupInteraction struct {
	Element       string `json:"element"`
	PopupAppeared bool   `json:"popup_appeared"`
	PopupTitle    string `json:"popup_title"`
	PopupPurpose  string `json:"popup_purpose"`
	TestWorthy    bool   `json:"test_worthy"`
}

type NavigationChange struct {
	FromURL    string `json:"from_url"`
	ToURL      string `json:"to_url"`
	Trigger    string `json:"trigger"`
	TestWorthy bool   `json:"test_worthy"`
}

type Failure struct {
	Action   string `json:"action"`
	Selector string `json:"selector"`
	Reason   string `json:"reason"`
}
