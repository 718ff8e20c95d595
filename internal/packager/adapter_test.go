package packager_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tvship/internal/packager"
	"tvship/internal/services"
	"tvship/internal/testsupport"
)

type fakeExecutor struct {
	calls    int
	fail     bool
	output   []string
	produce  []string
	contents string
}

func (f *fakeExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	f.calls++
	for _, line := range f.output {
		onOutput(line)
	}
	if f.fail {
		return errors.New("exit status 1")
	}
	outDir := outputDirFromArgs(args)
	for _, name := range f.produce {
		contents := f.contents
		if contents == "" {
			contents = "ipk-bytes"
		}
		if err := os.WriteFile(filepath.Join(outDir, name), []byte(contents), 0o644); err != nil {
			return err
		}
	}
	return nil
}

func outputDirFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "--outdir" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func writeApp(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "appinfo.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write appinfo.json: %v", err)
	}
	for _, name := range []string{"index.html", "icon.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

const validManifest = `{"id":"com.example.foo","version":"1.0.0","main":"index.html","icon":"icon.png","title":"Foo"}`

func TestPackageProducesChecksummedArtifact(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{produce: []string{"foo.ipk"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	sourceDir := writeApp(t, validManifest)
	artifact, err := adapter.Package(context.Background(), sourceDir)
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if artifact.PackageID != "com.example.foo" || artifact.Version != "1.0.0" {
		t.Fatalf("unexpected identity: %+v", artifact)
	}
	if artifact.Checksum == "" || artifact.Size == 0 {
		t.Fatalf("expected checksum and size, got %+v", artifact)
	}
	if err := artifact.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestPackageRejectsInvalidManifestWithoutInvokingTool(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{produce: []string{"foo.ipk"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	dir := t.TempDir()
	manifest := `{"id":"Not Valid","main":"missing.html"}`
	if err := os.WriteFile(filepath.Join(dir, "appinfo.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write appinfo.json: %v", err)
	}

	_, err = adapter.Package(context.Background(), dir)
	if !errors.Is(err, services.ErrInvalidManifest) {
		t.Fatalf("expected invalid manifest, got %v", err)
	}
	for _, fragment := range []string{"id", "version is required", "main entry point", "icon is required"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q listed in %q", fragment, err.Error())
		}
	}
	if executor.calls != 0 {
		t.Fatalf("external tool invoked %d times on invalid input", executor.calls)
	}
}

func TestPackageFailsWhenToolProducesNothing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	_, err = adapter.Package(context.Background(), writeApp(t, validManifest))
	if !errors.Is(err, services.ErrPackagingFailed) {
		t.Fatalf("expected packaging failed, got %v", err)
	}
}

func TestPackageWrapsToolDiagnostics(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{fail: true, output: []string{"FATAL: bad icon dimensions"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	_, err = adapter.Package(context.Background(), writeApp(t, validManifest))
	if !errors.Is(err, services.ErrPackagingFailed) {
		t.Fatalf("expected packaging failed, got %v", err)
	}
	if !strings.Contains(err.Error(), "bad icon dimensions") {
		t.Fatalf("expected tool diagnostic in %q", err.Error())
	}
}

func TestPackageUsesFirstOfMultipleArtifacts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{produce: []string{"b.ipk", "a.ipk"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	artifact, err := adapter.Package(context.Background(), writeApp(t, validManifest))
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if !strings.HasSuffix(artifact.Path, "a.ipk") {
		t.Fatalf("expected first sorted artifact, got %s", artifact.Path)
	}
}

func TestPackageIsIdempotentViaCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	executor := &fakeExecutor{produce: []string{"foo.ipk"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	sourceDir := writeApp(t, validManifest)
	ctx := context.Background()
	first, err := adapter.Package(ctx, sourceDir)
	if err != nil {
		t.Fatalf("first Package: %v", err)
	}
	second, err := adapter.Package(ctx, sourceDir)
	if err != nil {
		t.Fatalf("second Package: %v", err)
	}
	if first.Checksum != second.Checksum {
		t.Fatalf("checksums differ: %s vs %s", first.Checksum, second.Checksum)
	}
	if executor.calls != 1 {
		t.Fatalf("expected single tool invocation, got %d", executor.calls)
	}

	// Changing the source invalidates the cache key.
	if err := os.WriteFile(filepath.Join(sourceDir, "index.html"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("mutate source: %v", err)
	}
	if _, err := adapter.Package(ctx, sourceDir); err != nil {
		t.Fatalf("third Package: %v", err)
	}
	if executor.calls != 2 {
		t.Fatalf("expected cache miss after source change, got %d invocations", executor.calls)
	}
}

func TestPackageCreatesStagingDirWhenPreflightDisabled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Packager.MinFreeMiB = 0
	if err := os.RemoveAll(cfg.Paths.StagingDir); err != nil {
		t.Fatalf("remove staging dir: %v", err)
	}

	executor := &fakeExecutor{produce: []string{"foo.ipk"}}
	adapter, err := packager.New(cfg, nil, packager.WithExecutor(executor))
	if err != nil {
		t.Fatalf("packager.New: %v", err)
	}

	artifact, err := adapter.Package(context.Background(), writeApp(t, validManifest))
	if err != nil {
		t.Fatalf("Package: %v", err)
	}
	if err := artifact.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}
