package preflight

import (
	"context"

	"avatarmig/internal/config"
	"avatarmig/internal/objectstore"
	"avatarmig/internal/services/credentials"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
	// Optional results are informational and never block a run.
	Optional bool
}

// Deps carries the live collaborators some checks exercise. Nil members
// skip the checks that need them.
type Deps struct {
	Tokens  credentials.TokenSource
	Objects objectstore.GetObjectAPI
}

// MinFreeBytes is the free space below which the output volume check fails.
const MinFreeBytes = 64 << 20

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config, deps Deps) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if cfg.Migration.Source == "dir" {
		results = append(results, CheckReadableDirectory("Input directory", cfg.Paths.InputDir))
	}
	results = append(results,
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckFreeSpace("Output volume", cfg.Paths.OutputDir, MinFreeBytes),
		CheckNamingSecret(cfg.Naming.Secret),
		CheckSigningKeys(ctx, cfg.SigningKeys(), deps.Objects),
	)

	if deps.Tokens != nil {
		results = append(results, CheckToken(ctx, deps.Tokens))
	}
	results = append(results,
		CheckEndpoint(ctx, "Person API", cfg.PersonAPI.BaseURL),
		CheckEndpoint(ctx, "Change API", cfg.ChangeAPI.BaseURL),
	)

	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			out = append(out, r)
		}
	}
	return out
}
