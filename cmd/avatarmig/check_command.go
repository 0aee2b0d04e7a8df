package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"avatarmig/internal/preflight"
	"avatarmig/internal/services/credentials"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Run preflight checks against the configured paths and services",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			results := []preflight.Result{configResult(cfg.ValidateRun())}

			var deps preflight.Deps
			if cfg.ValidateAuth() == nil {
				broker, err := newTokenBroker(cfg)
				if err != nil {
					return err
				}
				deps.Tokens = broker
			} else {
				deps.Tokens = missingCredentials{}
			}
			objects, err := newObjectClient(cmd.Context(), cfg)
			if err != nil {
				results = append(results, preflight.Result{Name: "S3 client", Detail: err.Error()})
			}
			deps.Objects = objects

			results = append(results, preflight.RunAll(cmd.Context(), cfg, deps)...)
			fmt.Fprint(cmd.OutOrStdout(), renderChecks(results, useColor(cmd)))

			if failed := preflight.Failed(results); len(failed) > 0 {
				return fmt.Errorf("%d preflight check(s) failed", len(failed))
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All checks passed")
			return nil
		},
	}
}

func configResult(err error) preflight.Result {
	if err != nil {
		return preflight.Result{Name: "Configuration", Detail: err.Error()}
	}
	return preflight.Result{Name: "Configuration", Passed: true, Detail: "run settings complete"}
}

// missingCredentials makes the token check fail with a readable reason.
type missingCredentials struct{}

func (missingCredentials) Token(ctx context.Context) (string, error) {
	return "", errors.New("client credentials are not configured")
}

var _ credentials.TokenSource = missingCredentials{}

func renderChecks(results []preflight.Result, color bool) string {
	rows := make([][]string, 0, len(results))
	for _, r := range results {
		status := "pass"
		if !r.Passed {
			status = "fail"
			if r.Optional {
				status = "warn"
			}
		}
		rows = append(rows, []string{r.Name, colorStatus(status, color), r.Detail})
	}
	return renderTable([]string{"Check", "Status", "Detail"}, rows, nil)
}
