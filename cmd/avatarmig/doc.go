// Package main hosts the avatarmig CLI entrypoint and command graph.
//
// The Cobra command tree loads configuration, builds the migration pipeline
// from it, and renders results as tables or JSON. "migrate" runs the full
// pipeline under a single-run lock; "list" walks the person API read-only;
// "check" runs the preflight checks; "history" reads the run ledger.
//
// Keep this package lean: behaviour lives in the internal packages and is
// only wired and surfaced here.
package main
