package models

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
)

const modelFileName = ".doclens/models.json"

// ============================================================
// Domain Constants - High-level model categories
// ============================================================

const (
	DomainLanguage   = "language"   // Text/language processing
	DomainEmbedding  = "embedding"  // Vector embeddings
	DomainVision     = "vision"     // Image understanding and editing
	DomainMultimodal = "multimodal" // Text and images in one model
)

// SupportedDomains all valid domain values
var SupportedDomains = map[string]struct{}{
	DomainLanguage:   {},
	DomainEmbedding:  {},
	DomainVision:     {},
	DomainMultimodal: {},
}

// ============================================================
// Task Type Constants - Specific capabilities within domains
// ============================================================

const (
	TaskTypeChat               = "chat"                // Streaming answers, titles, outlines
	TaskTypeTextEmbedding      = "text_embedding"      // Concept index
	TaskTypeImageUnderstanding = "image_understanding" // Region analysis
	TaskTypeImageGeneration    = "image_generation"    // Region remix
)

// SupportedTaskTypes all valid task type values
var SupportedTaskTypes = map[string]struct{}{
	TaskTypeChat:               {},
	TaskTypeTextEmbedding:      {},
	TaskTypeImageUnderstanding: {},
	TaskTypeImageGeneration:    {},
}

// DomainTaskMapping maps domains to their supported task types
var DomainTaskMapping = map[string][]string{
	DomainLanguage:   {TaskTypeChat},
	DomainEmbedding:  {TaskTypeTextEmbedding},
	DomainVision:     {TaskTypeChat, TaskTypeImageUnderstanding, TaskTypeImageGeneration},
	DomainMultimodal: {TaskTypeChat, TaskTypeImageUnderstanding, TaskTypeImageGeneration},
}

// ModelCapabilities represents functional features that a model supports.
// All fields are optional and default to false when omitted.
type ModelCapabilities struct {
	Streaming    bool `json:"streaming,omitempty"`     // Streaming response support
	JSONMode     bool `json:"json_mode,omitempty"`     // Structured JSON output
	SystemPrompt bool `json:"system_prompt,omitempty"` // System prompt support
}

// ModelLimits represents optional size limits.
type ModelLimits struct {
	MaxTokens     int   `json:"max_tokens"`
	ContextWindow int   `json:"context_window"`
	Dimensions    []int `json:"dimensions,omitempty"` // Embedding output dimensions (first is default)
}

// ModelConfig unified struct containing common fields and vendor extension fields.
// Extra stores vendor specific additional parameters (e.g. ark "region").
type ModelConfig struct {
	ID           string                 `json:"id"`
	Provider     string                 `json:"provider"`
	Domain       string                 `json:"domain"`
	TaskTypes    []string               `json:"task_types"`
	Capabilities *ModelCapabilities     `json:"capabilities,omitempty"`
	Limits       *ModelLimits           `json:"limits,omitempty"`
	Model        string                 `json:"model"`    // Model identifier
	Name         string                 `json:"name"`     // Display name
	BaseUrl      string                 `json:"base_url"` // API endpoint
	ApiKey       string                 `json:"api_key"`  // API key
	Extra        map[string]interface{} `json:"extra"`    // Vendor-specific fields
}

func (m *ModelConfig) Normalize() {
	if m.Domain == "" {
		m.Domain = DomainLanguage
	}
	if len(m.TaskTypes) == 0 {
		m.TaskTypes = []string{TaskTypeChat}
	}
	if m.Extra == nil {
		m.Extra = map[string]interface{}{}
	}
}

// HasTask reports whether the model declares task type t.
func (m *ModelConfig) HasTask(t string) bool {
	return slices.Contains(m.TaskTypes, t)
}

// ExtraString returns a string vendor field, or "".
func (m *ModelConfig) ExtraString(key string) string {
	if m.Extra == nil {
		return ""
	}
	s, _ := m.Extra[key].(string)
	return s
}

// Get model storage file path
func getModelFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return modelFileName // fallback
	}
	return filepath.Join(home, modelFileName)
}

// LoadModels reads ~/.doclens/models.json. A missing file is an empty list.
func LoadModels() ([]*ModelConfig, error) {
	return LoadModelsFrom(getModelFilePath())
}

func LoadModelsFrom(path string) ([]*ModelConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return []*ModelConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var models []*ModelConfig
	if err := json.Unmarshal(data, &models); err != nil {
		return nil, err
	}
	out := models[:0]
	for _, m := range models {
		if m != nil {
			m.Normalize()
			out = append(out, m)
		}
	}
	return out, nil
}

// SaveModels writes ~/.doclens/models.json with owner-only permissions.
func SaveModels(models []*ModelConfig) error {
	return SaveModelsTo(getModelFilePath(), models)
}

func SaveModelsTo(path string, models []*ModelConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	for _, m := range models {
		if m != nil {
			m.Normalize()
		}
	}
	data, err := json.MarshalIndent(models, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// SupportedModelProviders supported model providers
var SupportedModelProviders = map[string]struct{}{
	"openai":    {},
	"deepseek":  {},
	"anthropic": {},
	"google":    {},
	"ark":       {},
	"ollama":    {},
	"qianfan":   {},
	"qwen":      {},
	"dashscope": {},
	"custom":    {},
}
