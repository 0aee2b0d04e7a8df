package ledger_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"avatarmig/internal/ledger"
	"avatarmig/internal/migrate"
	"avatarmig/internal/services"
	"avatarmig/internal/testsupport"
)

func sampleReport(id string, started time.Time) migrate.Report {
	return migrate.Report{RunID: id, State: migrate.StateFetching, StartedAt: started}
}

func TestOpenCreatesSchemaAndReopens(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	if store.Path() != filepath.Join(cfg.Paths.StateDir, "ledger.db") {
		t.Fatalf("unexpected ledger path %q", store.Path())
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := ledger.Open(cfg.LedgerPath())
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	defer reopened.Close()
	runs, err := reopened.Runs(context.Background(), 0)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty history, got %d runs", len(runs))
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := ledger.Open(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRecordsRunLifecycle(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	started := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	if err := store.BeginRun(ctx, sampleReport("run-a", started)); err != nil {
		t.Fatalf("BeginRun: %v", err)
	}

	outcomes := []migrate.Outcome{
		{Page: 1, UserID: "u1", UUID: "U1", Status: migrate.OutcomeMigrated, State: migrate.StateDone, InternalName: "i1.png", ExternalName: "e1.png", Picture: "/avatar/get/id/e1.png"},
		{Page: 1, UserID: "u2", UUID: "U2", Status: migrate.OutcomeSkipped, State: migrate.StateProcessing, Err: services.Wrap(services.ErrIO, "source", "fetch", "missing", nil)},
		{Page: 2, UserID: "u3", Status: migrate.OutcomeIncomplete, State: migrate.StateFiltering, Missing: []string{"uuid"}},
		{Page: 2, UserID: "u4", UUID: "U4", Status: migrate.OutcomeMigrated, State: migrate.StateDone},
	}
	for _, o := range outcomes {
		if err := store.RecordOutcome(ctx, "run-a", o); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}

	report := migrate.Report{
		RunID:      "run-a",
		State:      migrate.StateDone,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Pages:      2,
		Scanned:    5,
		Eligible:   3,
		Incomplete: 1,
		Processed:  2,
		Skipped:    1,
		Synced:     1,
		Failed:     1,
		Sync: migrate.SyncReport{Chunks: []migrate.ChunkResult{
			{Index: 0, Size: 1, UserIDs: []string{"u1"}},
			{Index: 1, Size: 1, UserIDs: []string{"u4"}, Err: errors.New("502")},
		}},
	}
	if err := store.FinishRun(ctx, report); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	run, err := store.Run(ctx, "run-a")
	if err != nil || run == nil {
		t.Fatalf("Run: %v (%v)", run, err)
	}
	if run.State != "done" || !run.Finished() || run.Pages != 2 || run.Processed != 2 || run.Synced != 1 || run.Failed != 1 {
		t.Fatalf("unexpected run row: %+v", run)
	}
	if !run.FinishedAt.Equal(started.Add(90 * time.Second)) {
		t.Fatalf("unexpected finished_at %v", run.FinishedAt)
	}

	recorded, err := store.Outcomes(ctx, "run-a", ledger.OutcomeFilter{})
	if err != nil {
		t.Fatalf("Outcomes: %v", err)
	}
	if len(recorded) != 4 {
		t.Fatalf("expected 4 outcomes, got %d", len(recorded))
	}
	if recorded[0].SyncStatus != ledger.SyncStatusSynced || recorded[3].SyncStatus != ledger.SyncStatusFailed {
		t.Fatalf("unexpected sync status: %q / %q", recorded[0].SyncStatus, recorded[3].SyncStatus)
	}
	if recorded[1].ErrorKind != "io" || recorded[1].SyncStatus != "" {
		t.Fatalf("unexpected skipped outcome: %+v", recorded[1])
	}
	if len(recorded[2].Missing) != 1 || recorded[2].Missing[0] != "uuid" {
		t.Fatalf("unexpected missing fields: %+v", recorded[2].Missing)
	}

	skipped, err := store.Outcomes(ctx, "run-a", ledger.OutcomeFilter{Status: string(migrate.OutcomeSkipped)})
	if err != nil || len(skipped) != 1 || skipped[0].UserID != "u2" {
		t.Fatalf("unexpected filtered outcomes: %+v (%v)", skipped, err)
	}
}

func TestFinishRunWithoutBeginInsertsRow(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	report := migrate.Report{RunID: "run-x", State: migrate.StateAborted, Err: errors.New("network error: person: list users")}
	if err := store.FinishRun(ctx, report); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	run, err := store.Run(ctx, "run-x")
	if err != nil || run == nil {
		t.Fatalf("Run: %v (%v)", run, err)
	}
	if run.State != "aborted" || run.Error == "" {
		t.Fatalf("unexpected run row: %+v", run)
	}
}

func TestRunsNewestFirstAndPrefixLookup(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"aaaa-1111", "aaaa-2222", "bbbb-3333"} {
		if err := store.BeginRun(ctx, sampleReport(id, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("BeginRun %s: %v", id, err)
		}
	}

	runs, err := store.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "bbbb-3333" || runs[1].ID != "aaaa-2222" {
		t.Fatalf("unexpected run order: %+v", runs)
	}

	run, err := store.Run(ctx, "bbbb")
	if err != nil || run == nil || run.ID != "bbbb-3333" {
		t.Fatalf("prefix lookup failed: %+v (%v)", run, err)
	}
	if _, err := store.Run(ctx, "aaaa"); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ambiguous prefix error, got %v", err)
	}
	missing, err := store.Run(ctx, "zzzz")
	if err != nil || missing != nil {
		t.Fatalf("expected nil run for unknown id, got %+v (%v)", missing, err)
	}
}

func TestUserHistoryAcrossRuns(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	for i, id := range []string{"run-1", "run-2"} {
		if err := store.BeginRun(ctx, sampleReport(id, time.Date(2024, 1, 1+i, 0, 0, 0, 0, time.UTC))); err != nil {
			t.Fatalf("BeginRun: %v", err)
		}
		if err := store.RecordOutcome(ctx, id, migrate.Outcome{UserID: "u1", Status: migrate.OutcomeSkipped, State: migrate.StateProcessing}); err != nil {
			t.Fatalf("RecordOutcome: %v", err)
		}
	}
	history, err := store.UserHistory(ctx, "u1")
	if err != nil {
		t.Fatalf("UserHistory: %v", err)
	}
	if len(history) != 2 || history[0].RunID != "run-2" {
		t.Fatalf("unexpected history: %+v", history)
	}
}
