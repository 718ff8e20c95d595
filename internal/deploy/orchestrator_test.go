package deploy_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"tvship/internal/config"
	"tvship/internal/deploy"
	"tvship/internal/packager"
	"tvship/internal/registry"
	"tvship/internal/services"
	"tvship/internal/services/webos"
	"tvship/internal/testsupport"
)

type fakeDevice struct {
	installFailures int
	installRejected string
	installCalls    int
	launchRejected  string
	launchCalls     int
	healthAfter     int
	healthCalls     int
	healthErr       error
	neverHealthy    bool
}

func (f *fakeDevice) Install(ctx context.Context, req webos.InstallRequest) error {
	f.installCalls++
	if f.installRejected != "" {
		return fmt.Errorf("%w: install: %s", webos.ErrRejected, f.installRejected)
	}
	if f.installCalls <= f.installFailures {
		return services.Wrap(services.ErrTransient, "device", "install", "", errors.New("connection reset"))
	}
	return nil
}

func (f *fakeDevice) Launch(ctx context.Context, appID string) error {
	f.launchCalls++
	if f.launchRejected != "" {
		return fmt.Errorf("%w: launch: %s", webos.ErrRejected, f.launchRejected)
	}
	return nil
}

func (f *fakeDevice) Health(ctx context.Context, appID string) (bool, error) {
	f.healthCalls++
	if f.healthErr != nil {
		return false, f.healthErr
	}
	if f.neverHealthy {
		return false, nil
	}
	return f.healthCalls >= f.healthAfter, nil
}

type fixture struct {
	cfg    *config.Config
	store  *registry.Store
	orch   *deploy.Orchestrator
	device *fakeDevice
}

func newFixture(t *testing.T, device *fakeDevice) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	locks, err := registry.NewLocks(cfg.LockDir())
	if err != nil {
		t.Fatalf("NewLocks: %v", err)
	}
	orch, err := deploy.New(cfg, store, locks, nil,
		deploy.WithClientFactory(func(d *registry.Device) (deploy.DeviceClient, error) {
			return device, nil
		}),
	)
	if err != nil {
		t.Fatalf("deploy.New: %v", err)
	}
	return &fixture{cfg: cfg, store: store, orch: orch, device: device}
}

func makeArtifact(t *testing.T) *packager.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "foo_1.0.0.ipk")
	if err := os.WriteFile(path, []byte("ipk-bytes"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
	checksum, size, err := packager.ChecksumFile(path)
	if err != nil {
		t.Fatalf("ChecksumFile: %v", err)
	}
	return &packager.Artifact{
		PackageID: "com.example.foo",
		Version:   "1.0.0",
		Path:      path,
		Checksum:  checksum,
		Size:      size,
	}
}

func TestDeployHappyPath(t *testing.T) {
	fx := newFixture(t, &fakeDevice{healthAfter: 2})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if dep.Status != deploy.StatusRunning {
		t.Fatalf("expected running, got %q", dep.Status)
	}
	if dep.Attempts != 1 {
		t.Fatalf("expected 1 install attempt, got %d", dep.Attempts)
	}

	history, err := fx.store.ListDeployments(context.Background(), "livingroom", 5)
	if err != nil {
		t.Fatalf("ListDeployments: %v", err)
	}
	if len(history) != 1 || history[0].Status != string(deploy.StatusRunning) {
		t.Fatalf("unexpected history: %+v", history)
	}
}

func TestDeployUnpairedDeviceNeverInstalls(t *testing.T) {
	fx := newFixture(t, &fakeDevice{})
	if err := fx.store.Upsert(context.Background(), &registry.Device{
		Alias: "livingroom",
		Host:  "192.168.1.50",
		Port:  9922,
		State: registry.StateUnpaired,
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrDeviceNotPaired) {
		t.Fatalf("expected device not paired, got %v", err)
	}
	if dep.Status != deploy.StatusFailed {
		t.Fatalf("expected failed, got %q", dep.Status)
	}
	if fx.device.installCalls != 0 {
		t.Fatalf("install invoked %d times on unpaired device", fx.device.installCalls)
	}
}

func TestDeployUnknownAlias(t *testing.T) {
	fx := newFixture(t, &fakeDevice{})
	_, err := fx.orch.Deploy(context.Background(), "ghost", makeArtifact(t))
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestInstallRetriesTransientThenSucceeds(t *testing.T) {
	fx := newFixture(t, &fakeDevice{installFailures: 2, healthAfter: 1})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if err != nil {
		t.Fatalf("Deploy: %v", err)
	}
	if dep.Status != deploy.StatusRunning {
		t.Fatalf("expected running after retries, got %q", dep.Status)
	}
	if dep.Attempts != 3 {
		t.Fatalf("expected 3 install attempts, got %d", dep.Attempts)
	}
}

func TestInstallExhaustionMarksDeviceUnreachable(t *testing.T) {
	fx := newFixture(t, &fakeDevice{installFailures: 10})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrInstallFailed) {
		t.Fatalf("expected install failed, got %v", err)
	}
	if dep.Attempts != 4 {
		t.Fatalf("expected 4 attempts (1 + 3 retries), got %d", dep.Attempts)
	}
	device, getErr := fx.store.Get(context.Background(), "livingroom")
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if device.State != registry.StateUnreachable {
		t.Fatalf("expected unreachable, got %q", device.State)
	}
}

func TestInstallRejectionDoesNotRetryOrMarkUnreachable(t *testing.T) {
	fx := newFixture(t, &fakeDevice{installRejected: "signature invalid"})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	_, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrInstallFailed) {
		t.Fatalf("expected install failed, got %v", err)
	}
	if fx.device.installCalls != 1 {
		t.Fatalf("rejection retried: %d install calls", fx.device.installCalls)
	}
	device, getErr := fx.store.Get(context.Background(), "livingroom")
	if getErr != nil {
		t.Fatalf("Get: %v", getErr)
	}
	if device.State != registry.StatePaired {
		t.Fatalf("expected device to stay paired, got %q", device.State)
	}
}

func TestLaunchFailureIsNotRetried(t *testing.T) {
	fx := newFixture(t, &fakeDevice{launchRejected: "missing dependency"})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrLaunchFailed) {
		t.Fatalf("expected launch failed, got %v", err)
	}
	if dep.Status != deploy.StatusFailed {
		t.Fatalf("expected failed, got %q", dep.Status)
	}
	if fx.device.launchCalls != 1 {
		t.Fatalf("launch retried: %d calls", fx.device.launchCalls)
	}
}

func TestHealthProbeTimeout(t *testing.T) {
	fx := newFixture(t, &fakeDevice{neverHealthy: true})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrLaunchTimeout) {
		t.Fatalf("expected launch timeout, got %v", err)
	}
	if dep.Status != deploy.StatusFailed {
		t.Fatalf("expected failed, got %q", dep.Status)
	}
}

func TestHealthProbeErrorReportsLaunchFailure(t *testing.T) {
	fx := newFixture(t, &fakeDevice{healthErr: errors.New("app crashed on start")})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	dep, err := fx.orch.Deploy(context.Background(), "livingroom", makeArtifact(t))
	if !errors.Is(err, services.ErrLaunchFailed) {
		t.Fatalf("expected launch failed, got %v", err)
	}
	if errors.Is(err, services.ErrLaunchTimeout) {
		t.Fatalf("probe failure misreported as timeout: %v", err)
	}
	if dep.Status != deploy.StatusFailed {
		t.Fatalf("expected failed, got %q", dep.Status)
	}
}

func TestTamperedArtifactFailsBeforeInstall(t *testing.T) {
	fx := newFixture(t, &fakeDevice{})
	testsupport.PairedDevice(t, fx.store, "livingroom", "192.168.1.50", 9922)

	artifact := makeArtifact(t)
	if err := os.WriteFile(artifact.Path, []byte("tampered"), 0o644); err != nil {
		t.Fatalf("tamper artifact: %v", err)
	}

	_, err := fx.orch.Deploy(context.Background(), "livingroom", artifact)
	if !errors.Is(err, services.ErrInstallFailed) {
		t.Fatalf("expected install failed, got %v", err)
	}
	if fx.device.installCalls != 0 {
		t.Fatalf("install invoked with tampered artifact: %d calls", fx.device.installCalls)
	}
}
