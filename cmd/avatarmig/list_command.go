package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"avatarmig/internal/migrate"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List profiles whose picture still points at legacy storage",
		Long: "List walks the person API without fetching images, writing files, or syncing.\n" +
			"Profiles missing a uuid or user_id are included and marked incomplete.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := cfg.ValidateAuth(); err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			p, err := newPipeline(cmd.Context(), cfg, logger, pipelineOptions{ReadOnly: true})
			if err != nil {
				return err
			}
			defer p.Close()

			pictures, err := p.orchestrator.ListLegacy(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, newLegacyViews(pictures))
			}
			if len(pictures) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No legacy pictures found")
				return nil
			}
			fmt.Fprint(cmd.OutOrStdout(), renderLegacy(pictures, useColor(cmd)))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit JSON instead of a table")
	return cmd
}

func renderLegacy(pictures []migrate.LegacyPicture, color bool) string {
	rows := make([][]string, 0, len(pictures))
	incomplete := 0
	for _, p := range pictures {
		status := "eligible"
		detail := p.Location
		if !p.Complete() {
			status = colorStatus("incomplete", color)
			detail = "missing " + strings.Join(p.Missing, ", ")
			incomplete++
		}
		rows = append(rows, []string{fmt.Sprint(p.Page), p.UserID, p.UUID, status, p.PictureURL, detail})
	}
	table := renderTable(
		[]string{"Page", "User ID", "UUID", "Status", "Picture", "Source / Detail"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
	)
	return table + fmt.Sprintf("%d legacy picture(s), %d incomplete\n", len(pictures), incomplete)
}
