package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"avatarmig/internal/migrate"
	"avatarmig/internal/services"
)

const outcomeColumns = `id, run_id, page, user_id, uuid, status, state, legacy_url, internal_name,
	external_name, picture, missing, error_kind, error, sync_status, recorded_at`

// RecordOutcome appends one profile outcome to runID.
func (s *Store) RecordOutcome(ctx context.Context, runID string, outcome migrate.Outcome) error {
	errText := ""
	if outcome.Err != nil {
		errText = outcome.Err.Error()
	}
	err := s.execWithRetry(ctx, `
		INSERT INTO outcomes (run_id, page, user_id, uuid, status, state, legacy_url, internal_name,
			external_name, picture, missing, error_kind, error, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, outcome.Page, outcome.UserID, outcome.UUID, string(outcome.Status), string(outcome.State),
		outcome.LegacyURL, outcome.InternalName, outcome.ExternalName, outcome.Picture,
		strings.Join(outcome.Missing, ","), services.Kind(outcome.Err), errText, formatTime(s.now()),
	)
	if err != nil {
		return fmt.Errorf("record outcome for %s: %w", outcome.UserID, err)
	}
	return nil
}

// OutcomeFilter narrows an Outcomes query. Zero values match everything.
type OutcomeFilter struct {
	Status string
	UserID string
}

// Outcomes returns the outcomes of runID in recording order.
func (s *Store) Outcomes(ctx context.Context, runID string, filter OutcomeFilter) ([]Outcome, error) {
	query := `SELECT ` + outcomeColumns + ` FROM outcomes WHERE run_id = ?`
	args := []any{runID}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, filter.UserID)
	}
	query += ` ORDER BY id`
	return s.queryOutcomes(ctx, query, args...)
}

// UserHistory returns every recorded outcome for userID across runs, newest first.
func (s *Store) UserHistory(ctx context.Context, userID string) ([]Outcome, error) {
	return s.queryOutcomes(ctx, `SELECT `+outcomeColumns+` FROM outcomes WHERE user_id = ? ORDER BY id DESC`, userID)
}

func (s *Store) queryOutcomes(ctx context.Context, query string, args ...any) ([]Outcome, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outcomes: %w", err)
	}
	defer rows.Close()

	var out []Outcome
	for rows.Next() {
		var (
			o        Outcome
			missing  string
			recorded sql.NullString
		)
		if err := rows.Scan(
			&o.ID, &o.RunID, &o.Page, &o.UserID, &o.UUID, &o.Status, &o.State, &o.LegacyURL,
			&o.InternalName, &o.ExternalName, &o.Picture, &missing, &o.ErrorKind, &o.Error,
			&o.SyncStatus, &recorded,
		); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		if missing != "" {
			o.Missing = strings.Split(missing, ",")
		}
		o.RecordedAt = parseTime(recorded)
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outcomes: %w", err)
	}
	return out, nil
}
