package models

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
)

//go:embed presets.json
var presetsJSON []byte

// presetsOverrideFile, under the home directory, replaces the built-in
// provider list when it exists and parses.
const presetsOverrideFile = ".doclens/model_providers.json"

// ModelPreset is a suggested model of a provider.
type ModelPreset struct {
	Model        string             `json:"model"`
	Name         string             `json:"name"`
	Domain       string             `json:"domain"`
	TaskTypes    []string           `json:"task_types"`
	Capabilities *ModelCapabilities `json:"capabilities,omitempty"`
	Limits       *ModelLimits       `json:"limits,omitempty"`
	Description  string             `json:"description,omitempty"`
}

// ProviderPreset is a provider with its default endpoint and suggested models.
type ProviderPreset struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	BaseURL     string        `json:"base_url"`
	Presets     []ModelPreset `json:"presets"`
	ExtraFields []ExtraField  `json:"extra_fields,omitempty"`
}

// ExtraField is a vendor specific setting shown when adding a model, e.g. the
// qianfan secret key.
type ExtraField struct {
	Key         string `json:"key"`
	Label       string `json:"label"`
	Required    bool   `json:"required"`
	Placeholder string `json:"placeholder,omitempty"`
}

type PresetsConfig struct {
	Providers []ProviderPreset `json:"providers"`
}

// Provider returns the preset for provider id.
func (c *PresetsConfig) Provider(id string) (*ProviderPreset, bool) {
	for i := range c.Providers {
		if c.Providers[i].ID == id {
			return &c.Providers[i], true
		}
	}
	return nil, false
}

// Model returns the suggested model with the given model name.
func (p *ProviderPreset) Model(model string) (*ModelPreset, bool) {
	for i := range p.Presets {
		if p.Presets[i].Model == model {
			return &p.Presets[i], true
		}
	}
	return nil, false
}

// ApplyDefaults fills what a user may leave out when adding a model: the
// provider's base URL, and the domain and task types of a matching suggested
// model. Fields already set are kept. It reports false when the provider has
// no preset, as for custom endpoints.
func (c *PresetsConfig) ApplyDefaults(m *ModelConfig) bool {
	p, ok := c.Provider(m.Provider)
	if !ok {
		return false
	}
	if m.BaseUrl == "" {
		m.BaseUrl = p.BaseURL
	}
	if mp, found := p.Model(m.Model); found {
		if m.Domain == "" {
			m.Domain = mp.Domain
		}
		if len(m.TaskTypes) == 0 {
			m.TaskTypes = slices.Clone(mp.TaskTypes)
		}
	}
	return true
}

func parsePresets(data []byte) (*PresetsConfig, error) {
	var cfg PresetsConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers")
	}
	return &cfg, nil
}

var builtinPresets = sync.OnceValues(func() (*PresetsConfig, error) {
	return parsePresets(presetsJSON)
})

// LoadPresetsFrom reads a provider list from path.
func LoadPresetsFrom(path string) (*PresetsConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := parsePresets(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadPresets returns ~/.doclens/model_providers.json when it is usable and
// the built-in list otherwise.
func LoadPresets() (*PresetsConfig, error) {
	if home, err := os.UserHomeDir(); err == nil {
		if cfg, err := LoadPresetsFrom(filepath.Join(home, presetsOverrideFile)); err == nil {
			return cfg, nil
		}
	}
	return builtinPresets()
}
