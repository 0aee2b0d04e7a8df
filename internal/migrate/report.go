package migrate

import (
	"time"
)

// State names a pipeline step. Profiles report the step they failed in.
type State string

const (
	StateFetching   State = "fetching"
	StateFiltering  State = "filtering"
	StateProcessing State = "processing"
	StateWriting    State = "writing"
	StateMutating   State = "mutating"
	StateSyncing    State = "syncing"
	StateDone       State = "done"
	StateAborted    State = "aborted"
	StateSkipped    State = "skipped"
)

// OutcomeStatus is the final disposition of one profile.
type OutcomeStatus string

const (
	// OutcomeMigrated means renditions were written and a patch was queued.
	OutcomeMigrated OutcomeStatus = "migrated"
	// OutcomePlanned is OutcomeMigrated for a dry run.
	OutcomePlanned OutcomeStatus = "planned"
	// OutcomeSkipped means a per-profile error stopped processing.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeIncomplete means a legacy profile lacks fields needed to migrate.
	OutcomeIncomplete OutcomeStatus = "incomplete"
)

// Outcome records what happened to one legacy (or malformed) profile.
type Outcome struct {
	Page         int
	UserID       string
	UUID         string
	Status       OutcomeStatus
	State        State
	LegacyURL    string
	InternalName string
	ExternalName string
	Picture      string
	Missing      []string
	Err          error
}

// Report is the final tally of a run. It is returned even when the run aborts.
type Report struct {
	RunID      string
	DryRun     bool
	State      State
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Scanned    int
	Eligible   int
	Incomplete int
	Processed  int
	Skipped    int
	Synced     int
	Failed     int
	Outcomes   []Outcome
	Sync       SyncReport
	Err        error
}

// Aborted reports whether the run stopped before syncing.
func (r Report) Aborted() bool {
	return r.State == StateAborted
}

// Duration returns the wall time of the run.
func (r Report) Duration() time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
