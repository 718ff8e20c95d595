package packager

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tvship/internal/config"
	"tvship/internal/logging"
	"tvship/internal/services"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Adapter wraps external packaging tool interactions.
type Adapter struct {
	cfg    *config.Config
	logger *slog.Logger
	exec   Executor
}

// Option configures the adapter.
type Option func(*Adapter)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(executor Executor) Option {
	return func(a *Adapter) {
		if executor != nil {
			a.exec = executor
		}
	}
}

// New constructs a packager adapter.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Adapter, error) {
	if cfg == nil {
		return nil, errors.New("packager requires config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	adapter := &Adapter{
		cfg:    cfg,
		logger: logger,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(adapter)
	}
	return adapter, nil
}

// Package validates the manifest in sourceDir, invokes the external
// packaging tool, and returns the checksummed artifact. Identical inputs
// reuse the cached artifact without invoking the tool again.
func (a *Adapter) Package(ctx context.Context, sourceDir string) (*Artifact, error) {
	ctx = services.WithStage(ctx, "package")
	logger := logging.WithContext(ctx, a.logger)

	sourceDir, err := filepath.Abs(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("resolve source dir: %w", err)
	}
	manifest, err := LoadManifest(sourceDir)
	if err != nil {
		return nil, err
	}

	sourceHash, err := hashSourceDir(sourceDir)
	if err != nil {
		return nil, fmt.Errorf("hash source dir: %w", err)
	}

	if a.cfg.Packager.CacheEnabled {
		if artifact, ok := a.cacheLookup(manifest, sourceHash); ok {
			logger.Info("reusing cached artifact",
				logging.String("package_id", manifest.ID),
				logging.String("artifact", artifact.Path),
			)
			return artifact, nil
		}
	}

	if err := a.ensureFreeSpace(); err != nil {
		return nil, err
	}

	outputDir, err := os.MkdirTemp(a.cfg.Paths.StagingDir, "package-")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	artifact, err := a.runTool(ctx, logger, manifest, sourceDir, outputDir)
	if err != nil {
		_ = os.RemoveAll(outputDir)
		return nil, err
	}

	if a.cfg.Packager.CacheEnabled {
		if cached, cacheErr := a.cacheStore(manifest, sourceHash, artifact); cacheErr != nil {
			logger.Warn("artifact cache write failed", logging.Error(cacheErr))
		} else {
			_ = os.RemoveAll(outputDir)
			artifact = cached
		}
	}

	logger.Info("packaging complete",
		logging.String("package_id", manifest.ID),
		logging.String("version", manifest.Version),
		logging.String("artifact", artifact.Path),
		logging.String("checksum", artifact.Checksum),
	)
	return artifact, nil
}

func (a *Adapter) runTool(ctx context.Context, logger *slog.Logger, manifest *Manifest, sourceDir, outputDir string) (*Artifact, error) {
	timeout := time.Duration(a.cfg.Packager.TimeoutSeconds) * time.Second
	toolCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		toolCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var output []string
	var mu sync.Mutex
	args := []string{sourceDir, "--manifest", filepath.Join(sourceDir, ManifestFileName), "--outdir", outputDir}
	logger.Info("invoking packaging tool",
		logging.String("command", a.cfg.Packager.Command),
		logging.String("source", sourceDir),
	)
	runErr := a.exec.Run(toolCtx, a.cfg.Packager.Command, args, func(line string) {
		mu.Lock()
		output = append(output, line)
		mu.Unlock()
		logger.Debug("packager output", logging.String("line", line))
	})
	if runErr != nil {
		diagnostic := strings.TrimSpace(strings.Join(output, "\n"))
		if diagnostic != "" {
			runErr = fmt.Errorf("%w; tool output: %s", runErr, diagnostic)
		}
		return nil, services.Wrap(services.ErrPackagingFailed, "package", "run tool", "external packaging step failed", runErr)
	}

	candidates, err := gatherArtifacts(outputDir)
	if err != nil {
		return nil, fmt.Errorf("inspect output dir: %w", err)
	}
	if len(candidates) == 0 {
		return nil, services.Wrap(services.ErrPackagingFailed, "package", "collect output",
			fmt.Sprintf("tool exited cleanly but produced no artifact in %s", outputDir), nil)
	}
	if len(candidates) > 1 {
		logger.Warn("multiple artifacts produced, using first",
			logging.String("selected", candidates[0]),
			logging.String("others", strings.Join(candidates[1:], ", ")),
		)
	}

	path := candidates[0]
	checksum, size, err := ChecksumFile(path)
	if err != nil {
		return nil, fmt.Errorf("checksum artifact: %w", err)
	}
	return &Artifact{
		PackageID: manifest.ID,
		Version:   manifest.Version,
		Path:      path,
		Checksum:  checksum,
		Size:      size,
	}, nil
}

func gatherArtifacts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".ipk") {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	var scanErr error
	var once sync.Once

	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() {
				scanErr = err
			})
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)

	wg.Wait()
	if scanErr != nil {
		_ = cmd.Process.Kill()
		return fmt.Errorf("scan output: %w", scanErr)
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
