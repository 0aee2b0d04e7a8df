// Package logging assembles structured slog loggers and formatting helpers used
// across avatarmig.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so migration code can tag log
// lines with run IDs, user IDs, pages, and sync chunks. The package also
// provides a no-op logger for tests and wiring code that cannot fail.
package logging
