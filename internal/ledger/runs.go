package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"avatarmig/internal/migrate"
	"avatarmig/internal/services"
)

var _ migrate.Recorder = (*Store)(nil)

const runColumns = `id, state, dry_run, started_at, finished_at, pages, scanned, eligible,
	incomplete, processed, skipped, synced, failed, error`

// BeginRun inserts the run row.
func (s *Store) BeginRun(ctx context.Context, report migrate.Report) error {
	started := report.StartedAt
	if started.IsZero() {
		started = s.now()
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO runs (id, state, dry_run, started_at) VALUES (?, ?, ?, ?)`,
		report.RunID, string(report.State), report.DryRun, formatTime(started),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", report.RunID, err)
	}
	return nil
}

// FinishRun stores the final tally and marks migrated outcomes with the
// result of their sync chunk. A run that was never begun is inserted.
func (s *Store) FinishRun(ctx context.Context, report migrate.Report) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	errText := ""
	if report.Err != nil {
		errText = report.Err.Error()
	}
	finished := report.FinishedAt
	if finished.IsZero() {
		finished = s.now()
	}
	started := report.StartedAt
	if started.IsZero() {
		started = finished
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			dry_run = excluded.dry_run,
			finished_at = excluded.finished_at,
			pages = excluded.pages,
			scanned = excluded.scanned,
			eligible = excluded.eligible,
			incomplete = excluded.incomplete,
			processed = excluded.processed,
			skipped = excluded.skipped,
			synced = excluded.synced,
			failed = excluded.failed,
			error = excluded.error`,
		report.RunID, string(report.State), report.DryRun, formatTime(started), formatTime(finished),
		report.Pages, report.Scanned, report.Eligible, report.Incomplete, report.Processed,
		report.Skipped, report.Synced, report.Failed, errText,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", report.RunID, err)
	}

	for _, chunk := range report.Sync.Chunks {
		status := SyncStatusSynced
		if !chunk.OK() {
			status = SyncStatusFailed
		}
		for _, userID := range chunk.UserIDs {
			if _, err := tx.ExecContext(ctx,
				`UPDATE outcomes SET sync_status = ? WHERE run_id = ? AND user_id = ? AND status = ?`,
				status, report.RunID, userID, string(migrate.OutcomeMigrated),
			); err != nil {
				return fmt.Errorf("mark sync status for %s: %w", userID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finish tx: %w", err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. A limit of zero or less
// returns every run.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// Run returns a single run. A unique id prefix is accepted.
func (s *Store) Run(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("run id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ? OR id LIKE ? ESCAPE '\' ORDER BY started_at DESC LIMIT 2`,
		id, escapeLike(id)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	defer rows.Close()

	var matches []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run.ID == id {
			return &run, nil
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return &matches[0], nil
	default:
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "get run", "run id prefix "+id+" is ambiguous", nil)
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (Run, error) {
	var (
		run      Run
		started  sql.NullString
		finished sql.NullString
	)
	if err := row.Scan(
		&run.ID, &run.State, &run.DryRun, &started, &finished,
		&run.Pages, &run.Scanned, &run.Eligible, &run.Incomplete, &run.Processed,
		&run.Skipped, &run.Synced, &run.Failed, &run.Error,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.StartedAt = parseTime(started)
	run.FinishedAt = parseTime(finished)
	return run, nil
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
