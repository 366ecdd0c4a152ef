package config

const (
	defaultDataDir        = "~/.local/share/pagesync/data"
	defaultLogDir         = "~/.local/share/pagesync/logs"
	defaultExportDir      = "~/.local/share/pagesync/exports"
	defaultGraphBaseURL   = "https://graph.facebook.com"
	defaultGraphVersion   = "v18.0"
	defaultGraphTimeout   = 30
	defaultGraphRetries   = 3
	defaultGraphPageLimit = 100

	// Export timestamps are UTC while the API reports page-local time;
	// the original data set runs eight hours ahead.
	defaultExportOffsetHours = 8

	defaultWorkers               = 5
	defaultFuzzyWindowMinutes    = 10
	defaultTitleMatchPrefixChars = 100
	defaultTitleAnyDateMinChars  = 20
	defaultPageRetries           = 2

	defaultNotifyTimeout = 10
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Graph: Graph{
			BaseURL:        defaultGraphBaseURL,
			APIVersion:     defaultGraphVersion,
			RequestTimeout: defaultGraphTimeout,
			MaxRetries:     defaultGraphRetries,
			PageLimit:      defaultGraphPageLimit,
		},
		BulkExport: BulkExport{
			Dir:             defaultExportDir,
			TimeOffsetHours: defaultExportOffsetHours,
		},
		Reconcile: Reconcile{
			Workers:               defaultWorkers,
			FuzzyWindowMinutes:    defaultFuzzyWindowMinutes,
			TitleMatchPrefixChars: defaultTitleMatchPrefixChars,
			TitleAnyDateMinChars:  defaultTitleAnyDateMinChars,
			PageRetries:           defaultPageRetries,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			RunSummary:     true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
