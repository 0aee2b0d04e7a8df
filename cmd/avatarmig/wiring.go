package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"avatarmig/internal/avatar"
	"avatarmig/internal/config"
	"avatarmig/internal/eligibility"
	"avatarmig/internal/ledger"
	"avatarmig/internal/migrate"
	"avatarmig/internal/naming"
	"avatarmig/internal/objectstore"
	"avatarmig/internal/services/change"
	"avatarmig/internal/services/credentials"
	"avatarmig/internal/services/httpapi"
	"avatarmig/internal/services/person"
	"avatarmig/internal/signing"
	"avatarmig/internal/source"
)

// pipelineOptions holds per-invocation overrides applied on top of config.
type pipelineOptions struct {
	DryRun   bool
	Workers  int
	ReadOnly bool
}

// pipeline is a fully wired orchestrator plus the resources it owns.
type pipeline struct {
	orchestrator *migrate.Orchestrator
	tokens       *credentials.Broker
	objects      objectstore.GetObjectAPI
	ledger       *ledger.Store
	closers      []io.Closer
}

func (p *pipeline) Close() error {
	var firstErr error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func newTokenBroker(cfg *config.Config) (*credentials.Broker, error) {
	return credentials.NewBroker(credentials.Config{
		TokenURL:     cfg.Auth.TokenURL,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		Audience:     cfg.Auth.Audience,
		Scopes:       cfg.Auth.Scopes,
		Timeout:      cfg.RequestTimeout(),
	})
}

// newObjectClient builds an S3 client only when the source or key backend needs one.
func newObjectClient(ctx context.Context, cfg *config.Config) (objectstore.GetObjectAPI, error) {
	if cfg.Migration.Source != "s3" && cfg.Signing.Backend != string(signing.BackendS3) {
		return nil, nil
	}
	client, err := objectstore.NewClient(ctx, objectstore.Options{
		Region:          cfg.S3.Region,
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		MaxRetries:      cfg.S3.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return client, nil
}

func newSource(cfg *config.Config, objects objectstore.GetObjectAPI) source.Source {
	if cfg.Migration.Source == "s3" {
		return source.NewS3Source(objects, source.WithTimeout(cfg.RequestTimeout()))
	}
	return source.NewDirSource(cfg.Paths.InputDir, cfg.Migration.SourceExtension)
}

func newPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts pipelineOptions) (*pipeline, error) {
	tokens, err := newTokenBroker(cfg)
	if err != nil {
		return nil, err
	}
	timeout := httpapi.WithTimeout(cfg.RequestTimeout())
	personAPI := httpapi.New("person api", cfg.PersonAPI.BaseURL, tokens, timeout)

	objects, err := newObjectClient(ctx, cfg)
	if err != nil {
		return nil, err
	}

	migrateOpts := migrate.Options{
		Lister:  person.NewClient(personAPI),
		Filter:  eligibility.NewFilter(eligibility.NewPrefixStorage(cfg.Migration.LegacyPrefixes...)),
		Source:  newSource(cfg, objects),
		Logger:  logger,
		Display: cfg.PictureDisplay(),
		Workers: cfg.Migration.Workers,
		DryRun:  opts.DryRun,
	}
	if opts.Workers > 0 {
		migrateOpts.Workers = opts.Workers
	}

	p := &pipeline{tokens: tokens, objects: objects}
	if !opts.ReadOnly {
		if err := cfg.ValidateRun(); err != nil {
			return nil, err
		}
		var storeOpts []signing.StoreOption
		if objects != nil {
			storeOpts = append(storeOpts, signing.WithObjectClient(objects))
		}
		keys, err := signing.NewSecretStore(ctx, cfg.SigningKeys(), storeOpts...)
		if err != nil {
			return nil, err
		}
		deriver, err := naming.NewDeriver([]byte(cfg.Naming.Secret))
		if err != nil {
			return nil, fmt.Errorf("naming: %w", err)
		}
		changeAPI := httpapi.New("change api", cfg.ChangeAPI.BaseURL, tokens, timeout)

		migrateOpts.Deriver = deriver
		migrateOpts.Writer = avatar.NewWriter(cfg.Paths.OutputDir, avatar.WithDryRun(opts.DryRun))
		migrateOpts.Mutator = migrate.NewMutator(
			signing.NewSigner(keys),
			migrate.WithPublisher(cfg.PicturePublisher()),
			migrate.WithPathPrefix(cfg.Migration.AvatarPathPrefix),
		)
		migrateOpts.Syncer = migrate.NewSyncer(change.NewClient(changeAPI), logger)

		if cfg.Ledger.Enabled {
			store, err := ledger.Open(cfg.LedgerPath())
			if err != nil {
				return nil, err
			}
			p.ledger = store
			p.closers = append(p.closers, store)
			migrateOpts.Recorder = store
		}
	}

	orchestrator, err := migrate.New(migrateOpts)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	p.orchestrator = orchestrator
	return p, nil
}
