package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tvship/internal/config"
	"tvship/internal/logging"
	"tvship/internal/packager"
	"tvship/internal/registry"
	"tvship/internal/services"
	"tvship/internal/services/webos"
)

// DeviceClient is the slice of the device protocol deployment needs.
type DeviceClient interface {
	Install(ctx context.Context, req webos.InstallRequest) error
	Launch(ctx context.Context, appID string) error
	Health(ctx context.Context, appID string) (bool, error)
}

// ClientFactory builds a protocol client for a registered device.
type ClientFactory func(device *registry.Device) (DeviceClient, error)

// Orchestrator drives the install → launch → health-check sequence.
type Orchestrator struct {
	cfg       *config.Config
	store     *registry.Store
	locks     *registry.Locks
	logger    *slog.Logger
	newClient ClientFactory
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithClientFactory injects a custom protocol client factory (primarily for tests).
func WithClientFactory(factory ClientFactory) Option {
	return func(o *Orchestrator) {
		if factory != nil {
			o.newClient = factory
		}
	}
}

// New constructs a deployment orchestrator.
func New(cfg *config.Config, store *registry.Store, locks *registry.Locks, logger *slog.Logger, opts ...Option) (*Orchestrator, error) {
	if cfg == nil || store == nil || locks == nil {
		return nil, errors.New("deploy requires config, store, and locks")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	orch := &Orchestrator{
		cfg:    cfg,
		store:  store,
		locks:  locks,
		logger: logger,
		newClient: func(device *registry.Device) (DeviceClient, error) {
			return webos.New(device.Host, device.Port, webos.WithToken(device.Token))
		},
	}
	for _, opt := range opts {
		opt(orch)
	}
	return orch, nil
}

// Deploy installs and launches the artifact on the device registered under
// alias. The returned Deployment always carries a terminal status; the error
// is non-nil whenever that status is failed.
func (o *Orchestrator) Deploy(ctx context.Context, alias string, artifact *packager.Artifact) (*Deployment, error) {
	alias = registry.NormalizeAlias(alias)
	ctx = services.WithDevice(ctx, alias)

	dep := &Deployment{
		ID:        uuid.NewString(),
		Alias:     alias,
		PackageID: artifact.PackageID,
		Version:   artifact.Version,
		Checksum:  artifact.Checksum,
		Status:    StatusPending,
		StartedAt: time.Now().UTC(),
	}

	release, err := o.locks.Acquire(ctx, alias)
	if err != nil {
		return o.fail(ctx, dep, err), err
	}
	defer release()

	device, err := o.store.Get(ctx, alias)
	if err != nil {
		return o.fail(ctx, dep, err), err
	}

	if device.State != registry.StatePaired {
		err := services.Wrap(services.ErrDeviceNotPaired, "deploy", "precondition",
			fmt.Sprintf("device %q is %s", alias, device.State), nil)
		return o.fail(ctx, dep, err), err
	}

	client, err := o.newClient(device)
	if err != nil {
		err = fmt.Errorf("build device client: %w", err)
		return o.fail(ctx, dep, err), err
	}

	if err := o.install(ctx, dep, artifact, client, alias); err != nil {
		return o.fail(ctx, dep, err), err
	}

	if err := o.launch(ctx, dep, artifact, client); err != nil {
		return o.fail(ctx, dep, err), err
	}

	if err := o.awaitRunning(ctx, dep, artifact, client); err != nil {
		return o.fail(ctx, dep, err), err
	}

	dep.Status = StatusRunning
	dep.FinishedAt = time.Now().UTC()
	_ = o.store.TouchLastSeen(ctx, alias, dep.FinishedAt)
	o.record(ctx, dep)

	logging.WithContext(ctx, o.logger).Info("deployment running",
		logging.String(logging.FieldEventType, "deploy_complete"),
		logging.String("package_id", dep.PackageID),
		logging.Int("install_attempts", dep.Attempts),
	)
	return dep, nil
}

// install transfers the artifact, retrying transient connectivity failures
// with backoff. The device is marked unreachable only when the final failure
// was connectivity-class; an on-device rejection leaves its state alone.
func (o *Orchestrator) install(ctx context.Context, dep *Deployment, artifact *packager.Artifact, client DeviceClient, alias string) error {
	stageCtx := services.WithStage(ctx, "install")
	logger := logging.WithContext(stageCtx, o.logger)
	dep.Status = StatusInstalling

	if err := artifact.Verify(); err != nil {
		return services.Wrap(services.ErrInstallFailed, "deploy", "verify artifact", "", err)
	}

	req := webos.InstallRequest{
		PackageID: artifact.PackageID,
		Version:   artifact.Version,
		Checksum:  artifact.Checksum,
		Size:      artifact.Size,
		Path:      artifact.Path,
	}

	tries := o.cfg.Deploy.InstallRetries + 1
	backoff := time.Duration(o.cfg.Deploy.InstallBackoffMS) * time.Millisecond
	attemptTimeout := time.Duration(o.cfg.Deploy.InstallTimeoutS) * time.Second

	var lastErr error
	for attempt := 1; attempt <= tries; attempt++ {
		dep.Attempts = attempt

		attemptCtx := stageCtx
		var cancel context.CancelFunc
		if attemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(stageCtx, attemptTimeout)
		}
		err := client.Install(attemptCtx, req)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			logger.Info("install complete", logging.Int("attempt", attempt))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if webos.Rejected(err) {
			return services.Wrap(services.ErrInstallFailed, "deploy", "install",
				"device rejected artifact", err)
		}
		lastErr = err
		if attempt < tries {
			logger.Warn("install failed, retrying",
				logging.Int("attempt", attempt),
				logging.Duration("backoff", backoff),
				logging.Error(err),
			)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}

	if services.Transient(lastErr) {
		if err := o.store.SetState(ctx, alias, registry.StateUnreachable); err != nil {
			logger.Warn("failed to mark device unreachable", logging.Error(err))
		} else {
			logger.Warn("device marked unreachable after repeated install failures")
		}
	}
	return services.Wrap(services.ErrInstallFailed, "deploy", "install",
		fmt.Sprintf("gave up after %d attempts", tries), lastErr)
}

// launch issues the launch command exactly once. Launch failures are usually
// deterministic, so retrying only wastes the operator's time.
func (o *Orchestrator) launch(ctx context.Context, dep *Deployment, artifact *packager.Artifact, client DeviceClient) error {
	stageCtx := services.WithStage(ctx, "launch")
	dep.Status = StatusLaunching

	if err := client.Launch(stageCtx, artifact.PackageID); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return services.Wrap(services.ErrLaunchFailed, "deploy", "launch", artifact.PackageID, err)
	}
	logging.WithContext(stageCtx, o.logger).Info("launch issued", logging.String("package_id", artifact.PackageID))
	return nil
}

// awaitRunning polls the health endpoint until the app is observed running
// or the grace period elapses.
func (o *Orchestrator) awaitRunning(ctx context.Context, dep *Deployment, artifact *packager.Artifact, client DeviceClient) error {
	stageCtx := services.WithStage(ctx, "health")
	logger := logging.WithContext(stageCtx, o.logger)

	grace := time.Duration(o.cfg.Deploy.HealthGraceSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(stageCtx, grace)
	defer cancel()

	ticker := time.NewTicker(time.Duration(o.cfg.Deploy.HealthPollMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		running, err := client.Health(waitCtx, artifact.PackageID)
		if err == nil && running {
			return nil
		}
		// A device-reported probe failure before the grace period expires
		// is a launch failure, not a timeout.
		if err != nil && !services.Transient(err) && waitCtx.Err() == nil {
			return services.Wrap(services.ErrLaunchFailed, "deploy", "health probe", "", err)
		}
		if err != nil {
			logger.Debug("health probe failed", logging.Error(err))
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return services.Wrap(services.ErrLaunchTimeout, "deploy", "health probe",
				fmt.Sprintf("app %s not observed running within %s", artifact.PackageID, grace), nil)
		case <-ticker.C:
		}
	}
}

// fail finalizes the deployment record for an error path.
func (o *Orchestrator) fail(ctx context.Context, dep *Deployment, err error) *Deployment {
	dep.Status = StatusFailed
	dep.FinishedAt = time.Now().UTC()
	if err != nil {
		dep.Error = err.Error()
	}
	o.record(ctx, dep)
	logging.WithContext(ctx, o.logger).Error("deployment failed",
		logging.String(logging.FieldEventType, "deploy_failure"),
		logging.String("package_id", dep.PackageID),
		logging.Error(err),
	)
	return dep
}

func (o *Orchestrator) record(ctx context.Context, dep *Deployment) {
	rec := &registry.DeploymentRecord{
		ID:         dep.ID,
		Alias:      dep.Alias,
		PackageID:  dep.PackageID,
		Version:    dep.Version,
		Checksum:   dep.Checksum,
		Status:     string(dep.Status),
		Attempts:   dep.Attempts,
		Error:      dep.Error,
		StartedAt:  dep.StartedAt,
		FinishedAt: dep.FinishedAt,
	}
	// History is best-effort; a bookkeeping failure must not mask the
	// deployment outcome.
	if err := o.store.RecordDeployment(context.WithoutCancel(ctx), rec); err != nil {
		o.logger.Warn("failed to record deployment history", logging.Error(err))
	}
}
