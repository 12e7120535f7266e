package config

const (
	defaultDataDir                  = "~/.local/share/syncqueue"
	defaultLogDir                   = "~/.local/share/syncqueue/logs"
	defaultServerBaseURL            = "http://127.0.0.1:3000"
	defaultServerRequestTimeout     = 30
	defaultServerProbeInterval      = 15
	defaultCollection               = "offline_requests"
	defaultEventBuffer              = 256
	defaultNotifyRequestTimeout     = 10
	defaultNotifyDedupWindowSeconds = 60
	defaultNotifyLanguage           = "en"
	defaultNotifyBuffer             = 32
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Server: Server{
			BaseURL:        defaultServerBaseURL,
			RequestTimeout: defaultServerRequestTimeout,
			ProbeInterval:  defaultServerProbeInterval,
		},
		Queue: Queue{
			Collection:  defaultCollection,
			EventBuffer: defaultEventBuffer,
		},
		Notifications: Notifications{
			RequestTimeout:     defaultNotifyRequestTimeout,
			SyncSuccess:        true,
			Dropped:            true,
			DedupWindowSeconds: defaultNotifyDedupWindowSeconds,
			Language:           defaultNotifyLanguage,
			Buffer:             defaultNotifyBuffer,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
