package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"avatarmig/internal/ledger"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		runID      string
		userID     string
		status     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded migration runs and their outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LedgerPath()
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if !cfg.Ledger.Enabled {
					fmt.Fprintln(cmd.OutOrStdout(), "Run ledger is disabled (set ledger.enabled = true)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
				return nil
			}

			store, err := ledger.Open(path)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			color := useColor(cmd)

			switch {
			case strings.TrimSpace(userID) != "":
				outcomes, err := store.UserHistory(cmd.Context(), strings.TrimSpace(userID))
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, outcomes)
				}
				if len(outcomes) == 0 {
					fmt.Fprintf(out, "No outcomes recorded for %s\n", userID)
					return nil
				}
				fmt.Fprint(out, renderOutcomes(outcomes, true, color))
				return nil

			case strings.TrimSpace(runID) != "":
				run, err := store.Run(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", runID)
				}
				outcomes, err := store.Outcomes(cmd.Context(), run.ID, ledger.OutcomeFilter{Status: strings.TrimSpace(status)})
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, struct {
						Run      ledger.Run       `json:"run"`
						Outcomes []ledger.Outcome `json:"outcomes"`
					}{*run, outcomes})
				}
				fmt.Fprint(out, renderRuns([]ledger.Run{*run}, color))
				if len(outcomes) == 0 {
					fmt.Fprintln(out, "No outcomes recorded")
					return nil
				}
				fmt.Fprint(out, renderOutcomes(outcomes, false, color))
				return nil

			default:
				runs, err := store.Runs(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, runs)
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				fmt.Fprint(out, renderRuns(runs, color))
				return nil
			}
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Number of recent runs to show (0 for all)")
	cmd.Flags().StringVar(&runID, "run", "", "Show the outcomes of one run (id or unique prefix)")
	cmd.Flags().StringVar(&userID, "user", "", "Show every recorded outcome for a user id")
	cmd.Flags().StringVar(&status, "status", "", "With --run, only show outcomes with this status")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderRuns(runs []ledger.Run, color bool) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		finished := "-"
		if r.Finished() {
			finished = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			shortID(r.ID),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			colorStatus(r.State, color),
			yesNo(r.DryRun),
			fmt.Sprint(r.Scanned),
			fmt.Sprint(r.Processed),
			fmt.Sprint(r.Skipped),
			fmt.Sprint(r.Synced),
			fmt.Sprint(r.Failed),
			finished,
		})
	}
	return renderTable(
		[]string{"Run", "Started", "State", "Dry Run", "Scanned", "Processed", "Skipped", "Synced", "Failed", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

func renderOutcomes(outcomes []ledger.Outcome, withRun, color bool) string {
	headers := []string{"Page", "User ID", "Status", "Sync", "Step", "Detail"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}
	if withRun {
		headers = append([]string{"Run"}, headers...)
		aligns = append([]columnAlignment{alignLeft}, aligns...)
	}
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.Picture
		switch {
		case len(o.Missing) > 0:
			detail = "missing " + strings.Join(o.Missing, ", ")
		case o.Error != "":
			detail = o.Error
		}
		row := []string{
			fmt.Sprint(o.Page),
			o.UserID,
			colorStatus(o.Status, color),
			colorStatus(o.SyncStatus, color),
			o.State,
			detail,
		}
		if withRun {
			row = append([]string{shortID(o.RunID)}, row...)
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
