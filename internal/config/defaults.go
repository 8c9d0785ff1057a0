package config

const (
	defaultDataDir    = "~/.local/share/gridflow/data"
	defaultOutputDir  = "~/.local/share/gridflow/output"
	defaultScratchDir = "~/.local/share/gridflow/scratch"
	defaultLogDir     = "~/.local/share/gridflow/logs"

	defaultWorkers            = 2
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultMaxRetries         = 2
	defaultTaskTimeout        = 0
	defaultKillGracePeriod    = 5

	defaultSubsetScript = "run_subset.sh"
	defaultRegridScript = "run_regrid.sh"

	defaultNtfyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			OutputDir:  defaultOutputDir,
			ScratchDir: defaultScratchDir,
			LogDir:     defaultLogDir,
		},
		Daemon: Daemon{
			Workers:            defaultWorkers,
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			MaxRetries:         defaultMaxRetries,
			TaskTimeout:        defaultTaskTimeout,
			KillGracePeriod:    defaultKillGracePeriod,
		},
		Runner: Runner{
			SubsetScript: defaultSubsetScript,
			RegridScript: defaultRegridScript,
			EchoOutput:   true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
