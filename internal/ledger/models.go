package ledger

import (
	"time"
)

// SyncStatus values recorded on migrated outcomes.
const (
	SyncStatusSynced = "synced"
	SyncStatusFailed = "failed"
)

// Run is one recorded migration run.
type Run struct {
	ID         string    `json:"id"`
	State      string    `json:"state"`
	DryRun     bool      `json:"dry_run"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Pages      int       `json:"pages"`
	Scanned    int       `json:"scanned"`
	Eligible   int       `json:"eligible"`
	Incomplete int       `json:"incomplete"`
	Processed  int       `json:"processed"`
	Skipped    int       `json:"skipped"`
	Synced     int       `json:"synced"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error"`
}

// Finished reports whether the run reached a terminal state.
func (r Run) Finished() bool {
	return !r.FinishedAt.IsZero()
}

// Outcome is one recorded profile outcome.
type Outcome struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	Page         int       `json:"page"`
	UserID       string    `json:"user_id"`
	UUID         string    `json:"uuid"`
	Status       string    `json:"status"`
	State        string    `json:"state"`
	LegacyURL    string    `json:"legacy_url"`
	InternalName string    `json:"internal_name"`
	ExternalName string    `json:"external_name"`
	Picture      string    `json:"picture"`
	Missing      []string  `json:"missing"`
	ErrorKind    string    `json:"error_kind"`
	Error        string    `json:"error"`
	SyncStatus   string    `json:"sync_status"`
	RecordedAt   time.Time `json:"recorded_at"`
}
