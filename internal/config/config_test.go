package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tvship/internal/config"
)

func TestLoadDefaultsAndExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantState := filepath.Join(tempHome, ".local", "share", "tvship")
	if cfg.Paths.StateDir != wantState {
		t.Fatalf("unexpected state dir: got %q want %q", cfg.Paths.StateDir, wantState)
	}
	if cfg.Packager.Command != "ares-package" {
		t.Fatalf("unexpected packager command: %q", cfg.Packager.Command)
	}
	if cfg.Pairing.TimeoutSeconds != 60 {
		t.Fatalf("unexpected pairing timeout: %d", cfg.Pairing.TimeoutSeconds)
	}
	if cfg.Deploy.InstallRetries != 3 {
		t.Fatalf("unexpected install retries: %d", cfg.Deploy.InstallRetries)
	}
	if cfg.RegistryPath() != filepath.Join(wantState, "registry.db") {
		t.Fatalf("unexpected registry path: %q", cfg.RegistryPath())
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := strings.Join([]string{
		"[packager]",
		`command = "fake-package"`,
		"timeout_seconds = 15",
		"",
		"[pairing]",
		"timeout_seconds = 5",
		"",
		"[logging]",
		`format = "json"`,
		`level = "debug"`,
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected config file to exist")
	}
	if cfg.Packager.Command != "fake-package" {
		t.Fatalf("unexpected packager command: %q", cfg.Packager.Command)
	}
	if cfg.Pairing.TimeoutSeconds != 5 {
		t.Fatalf("unexpected pairing timeout: %d", cfg.Pairing.TimeoutSeconds)
	}
	if cfg.Logging.Format != "json" || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging settings: %+v", cfg.Logging)
	}
}

func TestLoadRejectsInvalidLogging(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[logging]\nformat = \"xml\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, _, _, err := config.Load(path); err == nil {
		t.Fatal("expected error for invalid logging format")
	}
}

func TestWriteSampleRefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := config.WriteSample(path); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
