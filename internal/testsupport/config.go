package testsupport

import (
	"path/filepath"
	"testing"

	"tvship/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Packager.Command = "true"
	cfg.Packager.MinFreeMiB = 0

	// Tight timings so retry/timeout paths finish quickly under test.
	cfg.Pairing.TimeoutSeconds = 2
	cfg.Pairing.ProbeBackoffMS = 10
	cfg.Pairing.PollIntervalMS = 20
	cfg.Deploy.InstallBackoffMS = 10
	cfg.Deploy.HealthGraceSeconds = 1
	cfg.Deploy.HealthPollMS = 10
	cfg.LogRelay.ReconnectBaseMS = 10
	cfg.LogRelay.ReconnectMaxS = 1

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithPackagerCommand overrides the external packaging binary on the test config.
func WithPackagerCommand(command string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Packager.Command = command
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
