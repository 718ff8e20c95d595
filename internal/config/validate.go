package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePackager(); err != nil {
		return err
	}
	if err := c.validatePairing(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePackager() error {
	if c.Packager.Command == "" {
		return errors.New("packager.command must be set")
	}
	return nil
}

func (c *Config) validatePairing() error {
	if c.Pairing.TimeoutSeconds < 1 {
		return errors.New("pairing.timeout_seconds must be at least 1")
	}
	if c.Pairing.ProbeAttempts < 1 {
		return errors.New("pairing.probe_attempts must be at least 1")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
