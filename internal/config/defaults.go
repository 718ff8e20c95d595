package config

const (
	defaultStateDir   = "~/.local/share/tvship"
	defaultStagingDir = "~/.local/share/tvship/staging"
	defaultCacheDir   = "~/.local/share/tvship/cache"
	defaultLogDir     = "~/.local/share/tvship/logs"

	defaultPackagerCommand = "ares-package"
	defaultPackagerTimeout = 300
	defaultMinFreeMiB      = 256

	defaultPairingClientName     = "tvship"
	defaultPairingTimeoutSeconds = 60
	defaultProbeAttempts         = 3
	defaultProbeBackoffMS        = 500
	defaultPairingPollMS         = 1000
	defaultPairingRequestTimeout = 10

	defaultInstallRetries     = 3
	defaultInstallBackoffMS   = 1000
	defaultHealthGraceSeconds = 10
	defaultHealthPollMS       = 500
	defaultInstallTimeoutS    = 120
	defaultHistoryRetain      = 50

	defaultReconnectBaseMS   = 500
	defaultReconnectMaxS     = 30
	defaultLogReadTimeoutS   = 0
	defaultLogDeliveryBuffer = 64

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StagingDir: defaultStagingDir,
			CacheDir:   defaultCacheDir,
			LogDir:     defaultLogDir,
		},
		Packager: Packager{
			Command:        defaultPackagerCommand,
			TimeoutSeconds: defaultPackagerTimeout,
			MinFreeMiB:     defaultMinFreeMiB,
			CacheEnabled:   true,
		},
		Pairing: Pairing{
			ClientName:      defaultPairingClientName,
			TimeoutSeconds:  defaultPairingTimeoutSeconds,
			ProbeAttempts:   defaultProbeAttempts,
			ProbeBackoffMS:  defaultProbeBackoffMS,
			PollIntervalMS:  defaultPairingPollMS,
			RequestTimeoutS: defaultPairingRequestTimeout,
		},
		Deploy: Deploy{
			InstallRetries:      defaultInstallRetries,
			InstallBackoffMS:    defaultInstallBackoffMS,
			HealthGraceSeconds:  defaultHealthGraceSeconds,
			HealthPollMS:        defaultHealthPollMS,
			InstallTimeoutS:     defaultInstallTimeoutS,
			HistoryRetainRecent: defaultHistoryRetain,
		},
		LogRelay: LogRelay{
			ReconnectBaseMS:  defaultReconnectBaseMS,
			ReconnectMaxS:    defaultReconnectMaxS,
			ReadTimeoutS:     defaultLogReadTimeoutS,
			DeliveryBuffered: defaultLogDeliveryBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
