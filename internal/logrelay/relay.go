package logrelay

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

// EventReader yields decoded log events from one device connection.
// io.EOF from Next signals a cleanly closed stream.
type EventReader interface {
	Next() (webos.LogEvent, error)
	Close() error
}

// LogSource opens log stream connections to a device.
type LogSource interface {
	Tail(ctx context.Context, q webos.LogQuery) (EventReader, error)
}

// clientSource adapts the device protocol client to LogSource.
type clientSource struct {
	client *webos.Client
}

func (s clientSource) Tail(ctx context.Context, q webos.LogQuery) (EventReader, error) {
	return s.client.Tail(ctx, q)
}

// SourceFactory builds a log source for a registered device.
type SourceFactory func(device *registry.Device) (LogSource, error)

// Relay opens log sessions against registered devices.
type Relay struct {
	cfg       *config.Config
	store     *registry.Store
	logger    *slog.Logger
	newSource SourceFactory
}

// Option configures the relay.
type Option func(*Relay)

// WithSourceFactory injects a custom log source factory (primarily for tests).
func WithSourceFactory(factory SourceFactory) Option {
	return func(r *Relay) {
		if factory != nil {
			r.newSource = factory
		}
	}
}

// New constructs a log relay backed by the device registry.
func New(cfg *config.Config, store *registry.Store, logger *slog.Logger, opts ...Option) (*Relay, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("logrelay requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	relay := &Relay{
		cfg:    cfg,
		store:  store,
		logger: logger,
		newSource: func(device *registry.Device) (LogSource, error) {
			client, err := webos.New(device.Host, device.Port, webos.WithToken(device.Token))
			if err != nil {
				return nil, err
			}
			return clientSource{client: client}, nil
		},
	}
	for _, opt := range opts {
		opt(relay)
	}
	return relay, nil
}

// Open starts streaming logs from the device registered under alias. The
// session runs until ctx is cancelled, Close is called, or the device
// reports a non-recoverable error; connection drops are retried
// indefinitely with capped backoff.
func (r *Relay) Open(ctx context.Context, alias string, filter Filter) (*Session, error) {
	alias = registry.NormalizeAlias(alias)
	ctx = services.WithDevice(ctx, alias)

	device, err := r.store.Get(ctx, alias)
	if err != nil {
		return nil, err
	}
	if device.State != registry.StatePaired {
		return nil, services.Wrap(services.ErrDeviceNotPaired, "logs", "open session",
			fmt.Sprintf("device %q is %s", alias, device.State), nil)
	}

	source, err := r.newSource(device)
	if err != nil {
		return nil, fmt.Errorf("build device client: %w", err)
	}

	buffer := r.cfg.LogRelay.DeliveryBuffered
	if buffer < 0 {
		buffer = 0
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	session := &Session{
		id:     uuid.NewString(),
		alias:  alias,
		filter: filter,
		lines:  make(chan webos.LogEvent, buffer),
		done:   make(chan struct{}),
		cancel: cancel,
		logger: logging.WithContext(sessionCtx, r.logger),

		backoffBase: time.Duration(r.cfg.LogRelay.ReconnectBaseMS) * time.Millisecond,
		backoffMax:  time.Duration(r.cfg.LogRelay.ReconnectMaxS) * time.Second,
		readTimeout: time.Duration(r.cfg.LogRelay.ReadTimeoutS) * time.Second,
		source:      source,
	}
	go session.run(sessionCtx)
	return session, nil
}
