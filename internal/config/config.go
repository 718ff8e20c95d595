package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	StagingDir string `toml:"staging_dir"`
	CacheDir   string `toml:"cache_dir"`
	LogDir     string `toml:"log_dir"`
}

// Packager contains configuration for the external packaging tool.
type Packager struct {
	Command        string `toml:"command"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MinFreeMiB     int    `toml:"min_free_mib"`
	CacheEnabled   bool   `toml:"cache_enabled"`
}

// Pairing contains configuration for establishing trust with a device.
type Pairing struct {
	ClientName      string `toml:"client_name"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
	ProbeAttempts   int    `toml:"probe_attempts"`
	ProbeBackoffMS  int    `toml:"probe_backoff_ms"`
	PollIntervalMS  int    `toml:"poll_interval_ms"`
	RequestTimeoutS int    `toml:"request_timeout_seconds"`
}

// Deploy contains configuration for install/launch orchestration.
type Deploy struct {
	InstallRetries      int `toml:"install_retries"`
	InstallBackoffMS    int `toml:"install_backoff_ms"`
	HealthGraceSeconds  int `toml:"health_grace_seconds"`
	HealthPollMS        int `toml:"health_poll_ms"`
	InstallTimeoutS     int `toml:"install_timeout_seconds"`
	HistoryRetainRecent int `toml:"history_retain_recent"`
}

// LogRelay contains configuration for streaming device logs.
type LogRelay struct {
	ReconnectBaseMS  int `toml:"reconnect_base_ms"`
	ReconnectMaxS    int `toml:"reconnect_max_seconds"`
	ReadTimeoutS     int `toml:"read_timeout_seconds"`
	DeliveryBuffered int `toml:"delivery_buffer"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for tvship.
//
// Configuration sections by subsystem:
//   - Paths: state, staging, cache, and log directories
//   - Packager: external packaging tool invocation
//   - Pairing: probe retry and confirmation-wait policy
//   - Deploy: install retry and health probe policy
//   - LogRelay: reconnect backoff for device log streaming
//   - Logging: log format and level
type Config struct {
	Paths    Paths    `toml:"paths"`
	Packager Packager `toml:"packager"`
	Pairing  Pairing  `toml:"pairing"`
	Deploy   Deploy   `toml:"deploy"`
	LogRelay LogRelay `toml:"log_relay"`
	Logging  Logging  `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/tvship/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", false, err
		}
		path = defaultPath
	}
	expanded, err := expandPath(path)
	if err != nil {
		return "", false, err
	}
	if _, err := os.Stat(expanded); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return expanded, false, nil
		}
		return "", false, fmt.Errorf("stat config: %w", err)
	}
	return expanded, true, nil
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// EnsureDirectories creates the directories the pipeline needs at runtime.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Packager.CacheEnabled && strings.TrimSpace(c.Paths.CacheDir) != "" {
		if err := os.MkdirAll(c.Paths.CacheDir, 0o755); err != nil {
			return fmt.Errorf("create cache directory %q: %w", c.Paths.CacheDir, err)
		}
	}
	return nil
}

// LockDir returns the directory holding per-alias lock files.
func (c *Config) LockDir() string {
	return filepath.Join(c.Paths.StateDir, "locks")
}

// RegistryPath returns the SQLite database path backing the device registry.
func (c *Config) RegistryPath() string {
	return filepath.Join(c.Paths.StateDir, "registry.db")
}

// ExpandPath resolves a leading ~ and returns an absolute, cleaned path.
func ExpandPath(path string) (string, error) {
	return expandPath(path)
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
