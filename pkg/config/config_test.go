package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, home, content string) {
	t.Helper()
	configDir := filepath.Join(home, ".doclens")
	if err := os.MkdirAll(configDir, 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func TestLoad_MissingFile_ReturnsDefault(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, path, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if path == "" {
		t.Fatalf("expected config path")
	}
	if got := cfg.Host(); got != DefaultHost {
		t.Fatalf("cfg.Host() = %q, want %q", got, DefaultHost)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.StorageBackend(); got != DefaultBackend {
		t.Fatalf("cfg.StorageBackend() = %q, want %q", got, DefaultBackend)
	}
	if got := cfg.CapacityBytes(); got != DefaultCapacityBytes {
		t.Fatalf("cfg.CapacityBytes() = %d, want %d", got, DefaultCapacityBytes)
	}
	if got := cfg.ChatModel(); got != DefaultChatModel {
		t.Fatalf("cfg.ChatModel() = %q, want %q", got, DefaultChatModel)
	}
}

func TestEnsureDefaultConfig_CreatesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path, err := EnsureDefaultConfig()
	if err != nil {
		t.Fatalf("EnsureDefaultConfig() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected config file to exist at %s: %v", path, err)
	}

	cfg, gotPath, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if filepath.Clean(gotPath) != filepath.Clean(path) {
		t.Fatalf("Load() path = %s, want %s", gotPath, path)
	}
	if got := cfg.Port(); got != DefaultPort {
		t.Fatalf("cfg.Port() = %d, want %d", got, DefaultPort)
	}
	if got := cfg.ImageModel(); got != DefaultImageModel {
		t.Fatalf("cfg.ImageModel() = %q, want %q", got, DefaultImageModel)
	}
}

func TestLoad_ParsesStorage(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "server:\n  port: 9090\nstorage:\n  backend: Redis\n  redis_addr: localhost:6379\n  capacity_bytes: 1024\n")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := cfg.Port(); got != 9090 {
		t.Fatalf("cfg.Port() = %d, want %d", got, 9090)
	}
	if got := cfg.StorageBackend(); got != "redis" {
		t.Fatalf("cfg.StorageBackend() = %q, want %q", got, "redis")
	}
	if got := cfg.CapacityBytes(); got != 1024 {
		t.Fatalf("cfg.CapacityBytes() = %d, want %d", got, 1024)
	}
}

func TestLoad_StoragePathExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	writeConfig(t, home, "storage:\n  path: ~/data/lens.db\n")

	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got, want := cfg.StoragePath(), filepath.Join(home, "data", "lens.db"); got != want {
		t.Fatalf("cfg.StoragePath() = %q, want %q", got, want)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"port", "server:\n  port: 70000\n", "server.port"},
		{"backend", "storage:\n  backend: mongo\n", "storage.backend"},
		{"capacity", "storage:\n  capacity_bytes: 0\n", "capacity_bytes"},
		{"dsn", "storage:\n  backend: postgres\n", "storage.dsn"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			home := t.TempDir()
			t.Setenv("HOME", home)
			writeConfig(t, home, tc.content)

			_, _, err := Load()
			if err == nil {
				t.Fatalf("Load() expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Load() error = %v, want mention of %q", err, tc.want)
			}
		})
	}
}
