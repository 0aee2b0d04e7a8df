// Package ledger persists migration run history in SQLite.
//
// A Store records one row per run and one row per profile outcome, and marks
// migrated profiles with the result of the sync chunk that carried them. It
// implements migrate.Recorder so the orchestrator can write history as it
// goes, and it backs the `history` command. The database lives under the
// state directory and is created on first open.
package ledger
