// Package notifications delivers run events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured
// in config.toml and gracefully degrades to a no-op when notifications
// are disabled. Reconciliation and the dedup auditor depend only on the
// small Service interface, so alternative transports slot in without
// touching pipeline code.
package notifications
