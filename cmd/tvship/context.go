package main

import (
	"log/slog"
	"strings"
	"sync"

	"tvship/internal/config"
	"tvship/internal/logging"
	"tvship/internal/registry"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	log        *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) logger() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		logger, err := logging.NewFromSettings(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
		if err != nil {
			c.log = logging.NewNop()
			return
		}
		c.log = logger
	})
	return c.log
}

// withStore opens the registry for the duration of fn and closes it after.
func (c *commandContext) withStore(fn func(*registry.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := registry.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

// withStoreAndLocks is withStore plus the per-alias lock directory, for
// commands that mutate device state.
func (c *commandContext) withStoreAndLocks(fn func(*registry.Store, *registry.Locks) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	locks, err := registry.NewLocks(cfg.LockDir())
	if err != nil {
		return err
	}
	return c.withStore(func(store *registry.Store) error {
		return fn(store, locks)
	})
}
