package testsupport

import (
	"path/filepath"
	"testing"

	"pagesync/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.BulkExport.Dir = filepath.Join(base, "exports")

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithWorkers overrides the reconcile worker-pool size.
func WithWorkers(workers int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Reconcile.Workers = workers
	}
}

// WithFuzzyWindow overrides the fuzzy time-match window in minutes.
func WithFuzzyWindow(minutes int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Reconcile.FuzzyWindowMinutes = minutes
	}
}

// WithExportOffset overrides the bulk-export time offset in hours.
func WithExportOffset(hours int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.BulkExport.TimeOffsetHours = hours
	}
}
