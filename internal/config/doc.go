// Package config loads, normalizes, and validates the pagesync TOML
// configuration.
//
// Configuration holds everything the reconciliation pipeline treats as
// tunable rather than fixed law: the bulk-export time offset, the fuzzy
// match window, title-match thresholds, and worker-pool sizing, along
// with page credentials for the Graph source and ambient settings for
// logging and notifications.
package config
