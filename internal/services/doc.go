// Package services defines shared utilities consumed by the migration pipeline
// and its remote integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, user IDs, page numbers, and sync
//     chunk indexes for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     as profile-scoped (skip and continue) or run-scoped (abort).
//
// Subpackages hold the HTTP clients for the credential broker, the person
// listing API, and the change API.
package services
