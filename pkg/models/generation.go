package models

import "time"

// Mode selects which orchestrator path a generation takes.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModeCustom Mode = "custom"
)

// ParseMode validates a user-supplied mode string.
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeAuto, ModeCustom:
		return Mode(s), true
	}
	return "", false
}

// GenerationRequest is one accepted request for scenario generation.
type GenerationRequest struct {
	URL          string `json:"url"`
	Instructions string `json:"instructions,omitempty"`
	Mode         Mode   `json:"mode"`
	Model        string `json:"model"`
	Headless     bool   `json:"headless"`

	// OutputPath, when set, overrides the generated output file name.
	OutputPath string `json:"output_path,omitempty"`
	// SourceName records where custom instructions came from (file name, "stdin").
	SourceName string `json:"source_name,omitempty"`
}

// GenerationResult is what a successful pipeline run returns to its caller.
type GenerationResult struct {
	RunID       string         `json:"run_id"`
	GherkinText string         `json:"gherkin_content"`
	OutputPath  string         `json:"output_path"`
	Filename    string         `json:"output_file"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata"`
}

// Page is raw page markup plus what was learned about it while loading.
type Page struct {
	URL      string       `json:"url"`
	FinalURL string       `json:"final_url"`
	HTML     string       `json:"-"`
	Hash     string       `json:"hash"`
	Meta     PageMetadata `json:"meta"`
	Cached   bool         `json:"cached"`
}

// PageMetadata summarises a page's markup.
type PageMetadata struct {
	Title   string `json:"title"`
	Length  int    `json:"length"`
	Links   int    `json:"links"`
	Buttons int    `json:"buttons"`
	Forms   int    `json:"forms"`
	Dialogs int    `json:"dialogs"`
}
