package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"avatarmig/internal/config"
	"avatarmig/internal/logging"
	"avatarmig/internal/migrate"
	"avatarmig/internal/notifications"
	"avatarmig/internal/preflight"
)

// errSyncFailures marks a completed run whose failed chunks were promoted
// to an error by --fail-on-sync-error.
var errSyncFailures = errors.New("sync failures")

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var (
		dryRun          bool
		workers         int
		inputDir        string
		outputDir       string
		jsonOutput      bool
		failOnSyncError bool
		skipPreflight   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate every legacy avatar and sync the rewritten pictures",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := applyPathOverrides(cfg, inputDir, outputDir); err != nil {
				return err
			}
			if workers < 0 {
				return fmt.Errorf("--workers must be positive (got %d)", workers)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !locked {
				return fmt.Errorf("another migration is already running (lock %s)", cfg.LockPath())
			}
			defer func() {
				if err := lock.Unlock(); err != nil {
					logger.Warn("failed to release run lock", logging.Error(err))
				}
			}()

			p, err := newPipeline(cmd.Context(), cfg, logger, pipelineOptions{DryRun: dryRun, Workers: workers})
			if err != nil {
				return err
			}
			defer p.Close()

			if !skipPreflight {
				results := preflight.RunAll(cmd.Context(), cfg, preflight.Deps{Tokens: p.tokens, Objects: p.objects})
				if failed := preflight.Failed(results); len(failed) > 0 {
					fmt.Fprint(cmd.ErrOrStderr(), renderChecks(failed, useColor(cmd)))
					return fmt.Errorf("preflight: %d check(s) failed; run `avatarmig check` for details", len(failed))
				}
			}

			report, runErr := p.orchestrator.Run(cmd.Context())
			notifyRun(cmd, notifications.NewService(cfg), logger, report)

			if jsonOutput {
				if err := writeJSON(cmd, newRunView(report)); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), renderReport(report, useColor(cmd)))
				if p.ledger != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Recorded run %s in %s\n", report.RunID, p.ledger.Path())
				}
			}

			if runErr != nil {
				return runErr
			}
			if failOnSyncError && report.Failed > 0 {
				return fmt.Errorf("%w: %d profile(s) in %d chunk(s) were not synced", errSyncFailures, report.Failed, len(report.Sync.FailedChunks()))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Process and sign every profile without writing files or syncing")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent profiles per page (default from config)")
	cmd.Flags().StringVar(&inputDir, "input", "", "Directory of pre-downloaded legacy images")
	cmd.Flags().StringVar(&outputDir, "output", "", "Root directory for rendition buckets")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the run report as JSON")
	cmd.Flags().BoolVar(&failOnSyncError, "fail-on-sync-error", false, "Exit non-zero when any chunk fails to sync")
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Start without running preflight checks")
	return cmd
}

// notifyRun publishes the run summary. Delivery failures are only logged.
func notifyRun(cmd *cobra.Command, svc notifications.Service, logger *slog.Logger, report migrate.Report) {
	ctx := context.WithoutCancel(cmd.Context())
	var err error
	if report.Aborted() {
		err = svc.NotifyRunAborted(ctx, report)
	} else {
		err = svc.NotifyRunCompleted(ctx, report)
	}
	if err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run summary not delivered"),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		)
	}
}

func applyPathOverrides(cfg *config.Config, inputDir, outputDir string) error {
	if dir := strings.TrimSpace(inputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve --input: %w", err)
		}
		cfg.Paths.InputDir = expanded
	}
	if dir := strings.TrimSpace(outputDir); dir != "" {
		expanded, err := config.ExpandPath(dir)
		if err != nil {
			return fmt.Errorf("resolve --output: %w", err)
		}
		cfg.Paths.OutputDir = expanded
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return fmt.Errorf("create output directory %q: %w", expanded, err)
		}
	}
	return nil
}

func renderReport(report migrate.Report, color bool) string {
	var b strings.Builder

	title := "Migration"
	if report.DryRun {
		title = "Dry run"
	}
	fmt.Fprintf(&b, "%s %s: %s\n", title, report.RunID, colorStatus(string(report.State), color))
	rows := [][]string{
		{"Pages", fmt.Sprint(report.Pages)},
		{"Scanned", fmt.Sprint(report.Scanned)},
		{"Eligible", fmt.Sprint(report.Eligible)},
		{"Incomplete", fmt.Sprint(report.Incomplete)},
		{"Processed", fmt.Sprint(report.Processed)},
		{"Skipped", fmt.Sprint(report.Skipped)},
	}
	if !report.DryRun {
		rows = append(rows,
			[]string{"Synced", fmt.Sprint(report.Synced)},
			[]string{"Failed", fmt.Sprint(report.Failed)},
		)
	}
	if d := report.Duration(); d > 0 {
		rows = append(rows, []string{"Duration", d.Round(time.Millisecond).String()})
	}
	b.WriteString(renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))

	var problems [][]string
	for _, o := range report.Outcomes {
		if o.Status != migrate.OutcomeSkipped && o.Status != migrate.OutcomeIncomplete {
			continue
		}
		problems = append(problems, []string{
			fmt.Sprint(o.Page),
			o.UserID,
			colorStatus(string(o.Status), color),
			string(o.State),
			outcomeDetail(o),
		})
	}
	if len(problems) > 0 {
		b.WriteString("\nProfiles not migrated\n")
		b.WriteString(renderTable(
			[]string{"Page", "User ID", "Status", "Step", "Detail"},
			problems,
			[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
		))
	}

	if failed := report.Sync.FailedChunks(); len(failed) > 0 {
		rows := make([][]string, 0, len(failed))
		for _, c := range failed {
			rows = append(rows, []string{
				fmt.Sprint(c.Index + 1),
				fmt.Sprint(c.Size),
				strings.Join(c.UserIDs, ", "),
				errorText(c.Err),
			})
		}
		b.WriteString("\nChunks not synced\n")
		b.WriteString(renderTable(
			[]string{"Chunk", "Size", "User IDs", "Error"},
			rows,
			[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft},
		))
	}

	if report.Err != nil {
		fmt.Fprintf(&b, "\nRun aborted: %v\n", report.Err)
	}
	return b.String()
}

func outcomeDetail(o migrate.Outcome) string {
	if len(o.Missing) > 0 {
		return "missing " + strings.Join(o.Missing, ", ")
	}
	return errorText(o.Err)
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
