package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is read from a YAML file under the user's home directory.
// All fields are optional; defaults are applied by the accessor methods.
//
// Example (~/.doclens/config.yaml):
//
// server:
//   host: 127.0.0.1
//   port: 8089
// log:
//   level: info
// storage:
//   backend: sqlite       # sqlite | redis | postgres | mysql | memory
//   path: ~/.doclens/doclens.db
//   capacity_bytes: 5242880
// models:
//   chat: gemini-3-flash-preview
//   image: gemini-2.5-flash-image
// embedding:
//   provider: ollama
//   model: nomic-embed-text
//
// Notes:
// - If the config file does not exist, Load returns defaults without error.
// - If the config file exists but cannot be parsed, Load returns an error.
// - Port must be between 1 and 65535.
type AppConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Models    ModelsConfig    `yaml:"models"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

type ServerConfig struct {
	Host *string `yaml:"host"`
	Port *int    `yaml:"port"`
}

type LogConfig struct {
	Level string `yaml:"level,omitempty"`
}

// StorageConfig selects the conversation store backend.
type StorageConfig struct {
	Backend       string `yaml:"backend,omitempty"`
	Path          string `yaml:"path,omitempty"`       // sqlite database file
	DSN           string `yaml:"dsn,omitempty"`        // postgres / mysql
	RedisAddr     string `yaml:"redis_addr,omitempty"` // host:port
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db,omitempty"`
	CapacityBytes *int   `yaml:"capacity_bytes,omitempty"`
}

// ModelsConfig names the models used for text and image synthesis.
// Values are matched against the name or model field of ~/.doclens/models.json.
type ModelsConfig struct {
	Chat  string `yaml:"chat,omitempty"`
	Image string `yaml:"image,omitempty"`
}

// EmbeddingConfig enables the concept index used for related-concept lookup.
// An empty provider disables it.
type EmbeddingConfig struct {
	Provider string `yaml:"provider,omitempty"` // openai | ollama
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8089
	DefaultBackend       = "sqlite"
	DefaultCapacityBytes = 5 * 1024 * 1024
	DefaultChatModel     = "gemini-3-flash-preview"
	DefaultImageModel    = "gemini-2.5-flash-image"
)

var supportedBackends = map[string]struct{}{
	"sqlite":   {},
	"redis":    {},
	"postgres": {},
	"mysql":    {},
	"memory":   {},
}

// DefaultPaths returns the config dir and config file path.
func DefaultPaths() (configDir string, configFile string, err error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("get user home dir: %w", err)
	}
	configDir = filepath.Join(home, ".doclens")
	configFile = filepath.Join(configDir, "config.yaml")
	return configDir, configFile, nil
}

// Load reads ~/.doclens/config.yaml.
// If the file doesn't exist, it returns a default config and nil error.
func Load() (*AppConfig, string, error) {
	_, configFile, err := DefaultPaths()
	if err != nil {
		return nil, "", err
	}

	cfg := &AppConfig{}

	b, err := os.ReadFile(configFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, configFile, nil
		}
		return nil, "", fmt.Errorf("read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, "", fmt.Errorf("parse yaml config %s: %w", configFile, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("%w in %s", err, configFile)
	}

	return cfg, configFile, nil
}

// Validate checks the values that have no sensible fallback.
func (c *AppConfig) Validate() error {
	if strings.TrimSpace(c.Host()) == "" {
		return errors.New("invalid server.host (empty)")
	}
	if port := c.Port(); port < 1 || port > 65535 {
		return fmt.Errorf("invalid server.port %d", port)
	}
	if _, ok := supportedBackends[c.StorageBackend()]; !ok {
		return fmt.Errorf("invalid storage.backend %q", c.Storage.Backend)
	}
	if n := c.CapacityBytes(); n <= 0 {
		return fmt.Errorf("invalid storage.capacity_bytes %d", n)
	}
	switch c.StorageBackend() {
	case "postgres", "mysql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return fmt.Errorf("storage.dsn is required for backend %s", c.StorageBackend())
		}
	}
	return nil
}

// EnsureDefaultConfig writes a default config file if it doesn't already exist.
// It is safe to call on startup.
func EnsureDefaultConfig() (string, error) {
	configDir, configFile, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(configFile); err == nil {
		return configFile, nil
	}

	if err := os.MkdirAll(configDir, 0o700); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", configDir, err)
	}

	defaultCfg := AppConfig{
		Server:  ServerConfig{Host: ptr(DefaultHost), Port: ptr(DefaultPort)},
		Log:     LogConfig{Level: "info"},
		Storage: StorageConfig{Backend: DefaultBackend, CapacityBytes: ptr(DefaultCapacityBytes)},
		Models:  ModelsConfig{Chat: DefaultChatModel, Image: DefaultImageModel},
	}
	b, err := yaml.Marshal(&defaultCfg)
	if err != nil {
		return "", fmt.Errorf("marshal default config: %w", err)
	}

	// Write with restrictive permissions.
	if err := os.WriteFile(configFile, b, 0o600); err != nil {
		return "", fmt.Errorf("write default config file %s: %w", configFile, err)
	}

	return configFile, nil
}

func (c *AppConfig) Host() string {
	if c == nil || c.Server.Host == nil {
		return DefaultHost
	}
	v := strings.TrimSpace(*c.Server.Host)
	if v == "" {
		return DefaultHost
	}
	return v
}

func (c *AppConfig) Port() int {
	if c == nil || c.Server.Port == nil {
		return DefaultPort
	}
	return *c.Server.Port
}

func (c *AppConfig) LogLevel() string {
	if c == nil || c.Log.Level == "" {
		return "info"
	}
	return c.Log.Level
}

func (c *AppConfig) StorageBackend() string {
	if c == nil {
		return DefaultBackend
	}
	v := strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if v == "" {
		return DefaultBackend
	}
	return v
}

// StoragePath returns the sqlite database file, expanding a leading "~/".
func (c *AppConfig) StoragePath() string {
	if c != nil && c.Storage.Path != "" {
		return expandHome(c.Storage.Path)
	}
	configDir, _, err := DefaultPaths()
	if err != nil {
		return "doclens.db"
	}
	return filepath.Join(configDir, "doclens.db")
}

func (c *AppConfig) CapacityBytes() int {
	if c == nil || c.Storage.CapacityBytes == nil {
		return DefaultCapacityBytes
	}
	return *c.Storage.CapacityBytes
}

func (c *AppConfig) ChatModel() string {
	if c == nil || c.Models.Chat == "" {
		return DefaultChatModel
	}
	return c.Models.Chat
}

func (c *AppConfig) ImageModel() string {
	if c == nil || c.Models.Image == "" {
		return DefaultImageModel
	}
	return c.Models.Image
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

func ptr[T any](v T) *T { return &v }
