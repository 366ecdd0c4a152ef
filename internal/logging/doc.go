// Package logging builds slog loggers for the CLI and reconciliation
// pipeline with console and JSON output formats.
//
// All packages log through *slog.Logger values created here so that field
// names stay consistent; the Field* constants are the only structured keys
// the rest of the repository should use.
package logging
