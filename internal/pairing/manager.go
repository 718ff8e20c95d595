package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tvship/internal/config"
	"tvship/internal/logging"
	"tvship/internal/registry"
	"tvship/internal/services"
	"tvship/internal/services/webos"
)

// DeviceClient is the slice of the device protocol pairing needs.
type DeviceClient interface {
	Probe(ctx context.Context) error
	RequestPairing(ctx context.Context, req webos.PairingRequest) (string, error)
	PairingStatus(ctx context.Context, requestID string) (webos.PairingStatus, error)
}

// ClientFactory builds a protocol client for a device endpoint.
type ClientFactory func(host string, port int) (DeviceClient, error)

// Manager drives the pairing handshake and records the result.
type Manager struct {
	cfg       *config.Config
	store     *registry.Store
	locks     *registry.Locks
	logger    *slog.Logger
	newClient ClientFactory
}

// Option configures the manager.
type Option func(*Manager)

// WithClientFactory injects a custom protocol client factory (primarily for tests).
func WithClientFactory(factory ClientFactory) Option {
	return func(m *Manager) {
		if factory != nil {
			m.newClient = factory
		}
	}
}

// New constructs a pairing manager.
func New(cfg *config.Config, store *registry.Store, locks *registry.Locks, logger *slog.Logger, opts ...Option) (*Manager, error) {
	if cfg == nil || store == nil || locks == nil {
		return nil, errors.New("pairing requires config, store, and locks")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	manager := &Manager{
		cfg:    cfg,
		store:  store,
		locks:  locks,
		logger: logger,
		newClient: func(host string, port int) (DeviceClient, error) {
			return webos.New(host, port, webos.WithTimeout(time.Duration(cfg.Pairing.RequestTimeoutS)*time.Second))
		},
	}
	for _, opt := range opts {
		opt(manager)
	}
	return manager, nil
}

// Pair establishes trust with the device at host:port and registers it under
// alias. On success the device is persisted paired with a fresh token; a
// pairing that times out or is rejected leaves the registry untouched.
func (m *Manager) Pair(ctx context.Context, host string, port int, alias string) (*registry.Device, error) {
	alias = registry.NormalizeAlias(alias)
	if alias == "" {
		return nil, errors.New("alias is required")
	}
	ctx = services.WithDevice(ctx, alias)
	ctx = services.WithStage(ctx, "pairing")
	logger := logging.WithContext(ctx, m.logger)

	release, err := m.locks.Acquire(ctx, alias)
	if err != nil {
		return nil, err
	}
	defer release()

	// Refuse to silently repoint an alias that is already registered
	// elsewhere before prompting anyone at the TV.
	if existing, err := m.store.Get(ctx, alias); err == nil {
		if existing.Host != host || existing.Port != port {
			return nil, services.Wrap(services.ErrDuplicateAlias, "pairing", "register",
				fmt.Sprintf("alias %q already registered at %s", alias, existing.Endpoint()), nil)
		}
	} else if !errors.Is(err, services.ErrNotFound) {
		return nil, err
	}

	client, err := m.newClient(host, port)
	if err != nil {
		return nil, fmt.Errorf("build device client: %w", err)
	}

	if err := m.probe(ctx, logger, client, host, port); err != nil {
		return nil, err
	}

	requestID, err := client.RequestPairing(ctx, webos.PairingRequest{
		ClientID:   uuid.NewString(),
		ClientName: m.cfg.Pairing.ClientName,
	})
	if err != nil {
		if services.Transient(err) {
			return nil, services.Wrap(services.ErrNetworkUnreachable, "pairing", "request challenge",
				fmt.Sprintf("device %s:%d", host, port), err)
		}
		return nil, err
	}

	logger.Info("pairing requested, confirm on the device screen",
		logging.String("endpoint", fmt.Sprintf("%s:%d", host, port)),
		logging.Duration("timeout", time.Duration(m.cfg.Pairing.TimeoutSeconds)*time.Second),
	)

	token, err := m.awaitConfirmation(ctx, logger, client, requestID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	device := &registry.Device{
		Alias:    alias,
		Host:     host,
		Port:     port,
		Token:    token,
		State:    registry.StatePaired,
		LastSeen: &now,
	}
	if err := m.store.Upsert(ctx, device); err != nil {
		return nil, err
	}

	logger.Info("device paired",
		logging.String(logging.FieldEventType, "pairing_complete"),
		logging.String("endpoint", device.Endpoint()),
	)
	return device, nil
}

// probe retries transient connection failures with bounded exponential
// backoff before declaring the device unreachable. Rejections are surfaced
// immediately.
func (m *Manager) probe(ctx context.Context, logger *slog.Logger, client DeviceClient, host string, port int) error {
	attempts := m.cfg.Pairing.ProbeAttempts
	backoff := time.Duration(m.cfg.Pairing.ProbeBackoffMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := client.Probe(ctx)
		if err == nil {
			return nil
		}
		if !services.Transient(err) {
			return err
		}
		lastErr = err
		if attempt < attempts {
			logger.Debug("probe failed, retrying",
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
	return services.Wrap(services.ErrNetworkUnreachable, "pairing", "probe",
		fmt.Sprintf("device %s:%d not reachable after %d attempts", host, port, attempts), lastErr)
}

// awaitConfirmation polls the pairing status until the operator accepts on
// the device, the device rejects, or the configured timeout elapses.
func (m *Manager) awaitConfirmation(ctx context.Context, logger *slog.Logger, client DeviceClient, requestID string) (string, error) {
	timeout := time.Duration(m.cfg.Pairing.TimeoutSeconds) * time.Second
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Duration(m.cfg.Pairing.PollIntervalMS) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", services.Wrap(services.ErrPairingTimeout, "pairing", "await confirmation",
				fmt.Sprintf("not confirmed within %s", timeout), nil)
		case <-ticker.C:
		}

		status, err := client.PairingStatus(waitCtx, requestID)
		if err != nil {
			if services.Transient(err) && waitCtx.Err() == nil {
				logger.Debug("pairing status poll failed, retrying", logging.Error(err))
				continue
			}
			if waitCtx.Err() != nil {
				continue
			}
			return "", err
		}

		switch status.State {
		case webos.PairingPending:
			continue
		case webos.PairingAccepted:
			if status.Token == "" {
				return "", fmt.Errorf("device accepted pairing but returned no token")
			}
			return status.Token, nil
		case webos.PairingRejected:
			reason := status.Reason
			if reason == "" {
				reason = "denied on device"
			}
			return "", services.Wrap(services.ErrPairingRejected, "pairing", "await confirmation", reason, nil)
		default:
			return "", fmt.Errorf("device reported unknown pairing state %q", status.State)
		}
	}
}
