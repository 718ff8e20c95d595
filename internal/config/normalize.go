package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePackager()
	c.normalizePairing()
	c.normalizeDeploy()
	c.normalizeLogRelay()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.CacheDir) == "" {
		c.Paths.CacheDir = defaultCacheDir
	}
	if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
		return fmt.Errorf("paths.cache_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePackager() {
	c.Packager.Command = strings.TrimSpace(c.Packager.Command)
	if c.Packager.Command == "" {
		c.Packager.Command = defaultPackagerCommand
	}
	if c.Packager.TimeoutSeconds <= 0 {
		c.Packager.TimeoutSeconds = defaultPackagerTimeout
	}
	if c.Packager.MinFreeMiB < 0 {
		c.Packager.MinFreeMiB = 0
	}
}

func (c *Config) normalizePairing() {
	c.Pairing.ClientName = strings.TrimSpace(c.Pairing.ClientName)
	if c.Pairing.ClientName == "" {
		c.Pairing.ClientName = defaultPairingClientName
	}
	if c.Pairing.TimeoutSeconds <= 0 {
		c.Pairing.TimeoutSeconds = defaultPairingTimeoutSeconds
	}
	if c.Pairing.ProbeAttempts <= 0 {
		c.Pairing.ProbeAttempts = defaultProbeAttempts
	}
	if c.Pairing.ProbeBackoffMS <= 0 {
		c.Pairing.ProbeBackoffMS = defaultProbeBackoffMS
	}
	if c.Pairing.PollIntervalMS <= 0 {
		c.Pairing.PollIntervalMS = defaultPairingPollMS
	}
	if c.Pairing.RequestTimeoutS <= 0 {
		c.Pairing.RequestTimeoutS = defaultPairingRequestTimeout
	}
}

func (c *Config) normalizeDeploy() {
	if c.Deploy.InstallRetries < 0 {
		c.Deploy.InstallRetries = defaultInstallRetries
	}
	if c.Deploy.InstallBackoffMS <= 0 {
		c.Deploy.InstallBackoffMS = defaultInstallBackoffMS
	}
	if c.Deploy.HealthGraceSeconds <= 0 {
		c.Deploy.HealthGraceSeconds = defaultHealthGraceSeconds
	}
	if c.Deploy.HealthPollMS <= 0 {
		c.Deploy.HealthPollMS = defaultHealthPollMS
	}
	if c.Deploy.InstallTimeoutS <= 0 {
		c.Deploy.InstallTimeoutS = defaultInstallTimeoutS
	}
	if c.Deploy.HistoryRetainRecent <= 0 {
		c.Deploy.HistoryRetainRecent = defaultHistoryRetain
	}
}

func (c *Config) normalizeLogRelay() {
	if c.LogRelay.ReconnectBaseMS <= 0 {
		c.LogRelay.ReconnectBaseMS = defaultReconnectBaseMS
	}
	if c.LogRelay.ReconnectMaxS <= 0 {
		c.LogRelay.ReconnectMaxS = defaultReconnectMaxS
	}
	if c.LogRelay.ReadTimeoutS < 0 {
		c.LogRelay.ReadTimeoutS = defaultLogReadTimeoutS
	}
	if c.LogRelay.DeliveryBuffered <= 0 {
		c.LogRelay.DeliveryBuffered = defaultLogDeliveryBuffer
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
