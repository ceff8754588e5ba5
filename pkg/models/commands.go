package models

import "time"

// AnalysisCommand is a reusable one-click analysis prompt.
type AnalysisCommand struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	Prompt    string    `json:"prompt"`
	Tags      []string  `json:"tags"`
	Order     int       `json:"order"`
	Builtin   bool      `json:"builtin"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateCommandRequest struct {
	Label  string   `json:"label" binding:"required"`
	Prompt string   `json:"prompt" binding:"required"`
	Tags   []string `json:"tags"`
}

type UpdateCommandRequest struct {
	Label  *string   `json:"label"`
	Prompt *string   `json:"prompt"`
	Tags   *[]string `json:"tags"`
}

type ReorderCommandsRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

type CommandListResponse struct {
	Commands []AnalysisCommand `json:"commands"`
	Total    int               `json:"total"`
}

// DefaultCommands seed the command library on first run.
func DefaultCommands() []AnalysisCommand {
	return []AnalysisCommand{
		{ID: "summary", Label: "Synthesize Summary", Prompt: "Provide a structured summary of the key findings of this document.", Builtin: true},
		{ID: "method", Label: "Explain Methodology", Prompt: "What is the methodology used in this document? Break it down into steps.", Builtin: true},
		{ID: "critique", Label: "Identify Limitations", Prompt: "What are the main limitations or constraints mentioned in the document?", Builtin: true},
		{ID: "future", Label: "Next Steps", Prompt: "What are the future work or recommendations suggested by the authors?", Builtin: true},
	}
}

// RemixSuggestion is a preset remix instruction offered next to a region selection.
type RemixSuggestion struct {
	Label  string `json:"label"`
	Prompt string `json:"prompt"`
}

func DefaultRemixSuggestions() []RemixSuggestion {
	return []RemixSuggestion{
		{Label: "Arrows & Terms", Prompt: "Add arrows explaining terms"},
		{Label: "Tech Annotations", Prompt: "Generate version with technical annotations"},
		{Label: "Formula Map", Prompt: "Highlight formulas and name variables"},
		{Label: "Semantic Balloons", Prompt: "baloes apontando para termos e conceitos com busca semantica por cores e legendas explicativas coloriadas"},
	}
}
