package migrate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"avatarmig/internal/avatar"
	"avatarmig/internal/eligibility"
	"avatarmig/internal/logging"
	"avatarmig/internal/naming"
	"avatarmig/internal/profile"
	"avatarmig/internal/services"
	"avatarmig/internal/services/person"
	"avatarmig/internal/source"
)

// DefaultWorkers bounds concurrent profile processing when Options.Workers is unset.
const DefaultWorkers = 4

// Transcoder turns raw legacy bytes into a rendition set.
type Transcoder interface {
	Transcode(raw []byte) (avatar.RenditionSet, error)
}

// NameDeriver produces the internal and external avatar names.
type NameDeriver interface {
	Derive(uuid, display string) naming.Derivation
}

// RenditionWriter persists a rendition set under a name.
type RenditionWriter interface {
	Write(set avatar.RenditionSet, name string) error
}

// Recorder persists run history. Recorder failures are logged and never
// change the outcome of a run.
type Recorder interface {
	BeginRun(ctx context.Context, report Report) error
	RecordOutcome(ctx context.Context, runID string, outcome Outcome) error
	FinishRun(ctx context.Context, report Report) error
}

// Options wires the orchestrator's collaborators. Lister and Source are
// always required; the rest are required by Run only.
type Options struct {
	Lister     person.Lister
	Filter     *eligibility.Filter
	Source     source.Source
	Transcoder Transcoder
	Deriver    NameDeriver
	Writer     RenditionWriter
	Mutator    *Mutator
	Syncer     *Syncer
	Recorder   Recorder
	Logger     *slog.Logger

	// Display is the visibility level encoded into avatar names.
	Display profile.Display
	Workers int
	// DryRun processes and signs every profile but skips the sync step.
	// Disk writes are governed by the Writer.
	DryRun bool

	NewRunID func() string
	Now      func() time.Time
}

// Orchestrator runs the migration pipeline.
type Orchestrator struct {
	lister     person.Lister
	filter     *eligibility.Filter
	source     source.Source
	transcoder Transcoder
	deriver    NameDeriver
	writer     RenditionWriter
	mutator    *Mutator
	syncer     *Syncer
	recorder   Recorder
	logger     *slog.Logger

	display  profile.Display
	workers  int
	dryRun   bool
	newRunID func() string
	now      func() time.Time
}

// New validates opts and builds an Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Lister == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "person lister is required", nil)
	}
	if opts.Source == nil {
		return nil, services.Wrap(services.ErrConfiguration, "orchestrator", "init", "image source is required", nil)
	}
	o := &Orchestrator{
		lister:     opts.Lister,
		filter:     opts.Filter,
		source:     opts.Source,
		transcoder: opts.Transcoder,
		deriver:    opts.Deriver,
		writer:     opts.Writer,
		mutator:    opts.Mutator,
		syncer:     opts.Syncer,
		recorder:   opts.Recorder,
		logger:     logging.NewComponentLogger(opts.Logger, "orchestrator"),
		display:    opts.Display,
		workers:    opts.Workers,
		dryRun:     opts.DryRun,
		newRunID:   opts.NewRunID,
		now:        opts.Now,
	}
	if o.filter == nil {
		o.filter = eligibility.NewFilter(nil)
	}
	if o.transcoder == nil {
		o.transcoder = avatar.Transcoder{}
	}
	if o.display == "" {
		o.display = profile.DisplayStaff
	}
	if o.workers <= 0 {
		o.workers = DefaultWorkers
	}
	if o.newRunID == nil {
		o.newRunID = uuid.NewString
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

func (o *Orchestrator) ready() error {
	var missing []string
	if o.deriver == nil {
		missing = append(missing, "name deriver")
	}
	if o.writer == nil {
		missing = append(missing, "rendition writer")
	}
	if o.mutator == nil {
		missing = append(missing, "mutator")
	}
	if o.syncer == nil && !o.dryRun {
		missing = append(missing, "syncer")
	}
	if len(missing) > 0 {
		return services.Wrap(services.ErrConfiguration, "orchestrator", "run", "missing "+strings.Join(missing, ", "), nil)
	}
	return nil
}

type profileResult struct {
	patch   profile.Patch
	outcome Outcome
}

// Run migrates every eligible profile and syncs the resulting patches. The
// report is always returned; err is non-nil only when the run aborted.
// Cancellation is observed before each page fetch and before each chunk.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	if err := o.ready(); err != nil {
		return Report{State: StateAborted, Err: err}, err
	}

	report := Report{
		RunID:     o.newRunID(),
		DryRun:    o.dryRun,
		State:     StateFetching,
		StartedAt: o.now().UTC(),
	}
	ctx = services.WithRunID(ctx, report.RunID)
	logger := logging.WithContext(ctx, o.logger)
	logger.Info("migration started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.Bool("dry_run", o.dryRun),
		logging.Int("workers", o.workers),
		logging.String("display", string(o.display)),
	)
	o.beginRun(ctx, report)

	var patches []profile.Patch
	pager := person.NewPager(o.lister)
	for {
		report.State = StateFetching
		batch, ok, err := pager.Next(ctx)
		if err != nil {
			return o.abort(ctx, &report, err)
		}
		if !ok {
			break
		}
		report.Pages = pager.Pages()
		pageCtx := services.WithPage(ctx, report.Pages)
		patches = append(patches, o.processPage(pageCtx, batch, &report)...)
	}

	if o.dryRun {
		logger.Info("dry run: sync skipped",
			logging.String(logging.FieldEventType, "sync_skipped"),
			logging.Int("patches", len(patches)),
		)
	} else if len(patches) > 0 {
		report.State = StateSyncing
		report.Sync = o.syncer.Sync(ctx, patches)
		report.Synced = report.Sync.Synced()
		report.Failed = report.Sync.Failed()
	}

	report.State = StateDone
	report.FinishedAt = o.now().UTC()
	attrs := append([]logging.Attr{logging.String(logging.FieldEventType, "run_summary")}, summaryAttrs(report)...)
	logger.Info("migration finished", logging.Args(attrs...)...)
	o.finishRun(ctx, report)
	return report, nil
}

func (o *Orchestrator) abort(ctx context.Context, report *Report, err error) (Report, error) {
	report.State = StateAborted
	report.Err = err
	report.FinishedAt = o.now().UTC()
	logger := logging.WithContext(ctx, o.logger)
	attrs := append(logging.ErrorAttrs(err), summaryAttrs(*report)...)
	attrs = append(attrs, logging.String(logging.FieldErrorHint, abortHint(err)))
	logging.ErrorWithContext(logger, "migration aborted", "run_aborted", attrs...)
	o.finishRun(ctx, *report)
	return *report, err
}

// processPage classifies a page and migrates its eligible profiles on the
// worker pool. Outcomes and patches keep page order.
func (o *Orchestrator) processPage(ctx context.Context, batch person.Batch, report *Report) []profile.Patch {
	page, _ := services.PageFromContext(ctx)
	logger := logging.WithContext(ctx, o.logger)
	report.State = StateFiltering
	report.Scanned += len(batch.Items) + len(batch.Malformed)

	for _, err := range batch.Malformed {
		report.Skipped++
		logging.WarnWithContext(logger, "malformed profile skipped", "profile_malformed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "profile not examined"),
			logging.String(logging.FieldErrorHint, "inspect the listing payload for this page"),
		)
		o.record(ctx, report, Outcome{Page: page, Status: OutcomeSkipped, State: StateFiltering, Err: err})
	}

	var eligible []profile.Profile
	for _, p := range batch.Items {
		verdict := o.filter.Classify(p)
		switch verdict.Status {
		case eligibility.Eligible:
			eligible = append(eligible, p)
		case eligibility.Incomplete:
			report.Incomplete++
			outcome := Outcome{
				Page:      page,
				UserID:    p.UserID.ValueOrZero(),
				UUID:      p.UUID.ValueOrZero(),
				Status:    OutcomeIncomplete,
				State:     StateFiltering,
				LegacyURL: p.Picture.ValueOrZero(),
				Missing:   verdict.Missing,
			}
			logging.WarnWithContext(logger, "legacy profile incomplete", "profile_incomplete",
				logging.String(logging.FieldUserID, outcome.UserID),
				logging.String("missing", strings.Join(verdict.Missing, ",")),
				logging.String(logging.FieldImpact, "picture left unchanged"),
				logging.String(logging.FieldErrorHint, "fix the profile record, then re-run"),
			)
			o.record(ctx, report, outcome)
		}
	}
	report.Eligible += len(eligible)
	logger.Debug("page classified",
		logging.String(logging.FieldEventType, "page_classified"),
		logging.Int("items", len(batch.Items)),
		logging.Int("eligible", len(eligible)),
	)
	if len(eligible) == 0 {
		return nil
	}

	report.State = StateProcessing
	results := make([]profileResult, len(eligible))
	workers := pool.New().WithMaxGoroutines(o.workers)
	for i, p := range eligible {
		workers.Go(func() {
			results[i] = o.migrateProfile(ctx, page, p)
		})
	}
	workers.Wait()

	patches := make([]profile.Patch, 0, len(results))
	for _, result := range results {
		if result.outcome.Status == OutcomeSkipped {
			report.Skipped++
		} else {
			report.Processed++
			patches = append(patches, result.patch)
		}
		o.record(ctx, report, result.outcome)
	}
	return patches
}

// migrateProfile runs one eligible profile through source, transcode,
// derive, write, and mutate. Any error skips the profile.
func (o *Orchestrator) migrateProfile(ctx context.Context, page int, p profile.Profile) profileResult {
	userID := p.UserID.ValueOrZero()
	ctx = services.WithUserID(ctx, userID)
	logger := logging.WithContext(ctx, o.logger)

	outcome := Outcome{
		Page:      page,
		UserID:    userID,
		UUID:      p.UUID.ValueOrZero(),
		LegacyURL: p.Picture.ValueOrZero(),
	}
	skip := func(state State, err error) profileResult {
		outcome.Status = OutcomeSkipped
		outcome.State = state
		outcome.Err = err
		attrs := append(logging.ErrorAttrs(err),
			logging.String("state", string(state)),
			logging.String(logging.FieldImpact, "picture left unchanged"),
			logging.String(logging.FieldErrorHint, skipHint(err)),
		)
		logging.WarnWithContext(logger, "profile skipped", "profile_skipped", attrs...)
		return profileResult{outcome: outcome}
	}

	raw, err := o.source.Fetch(ctx, source.Request{UserID: userID, UUID: outcome.UUID, PictureURL: outcome.LegacyURL})
	if err != nil {
		return skip(StateProcessing, err)
	}
	set, err := o.transcoder.Transcode(raw)
	if err != nil {
		return skip(StateProcessing, err)
	}

	derivation := o.deriver.Derive(outcome.UUID, string(o.display))
	outcome.InternalName = derivation.Internal
	outcome.ExternalName = derivation.External
	if err := o.writer.Write(set, derivation.Internal); err != nil {
		return skip(StateWriting, err)
	}

	patch, err := o.mutator.Mutate(p, derivation)
	if err != nil {
		return skip(StateMutating, err)
	}
	outcome.Picture = patch.Picture.ValueOrZero()
	outcome.State = StateDone
	outcome.Status = OutcomeMigrated
	if o.dryRun {
		outcome.Status = OutcomePlanned
	}
	logger.Info("profile migrated",
		logging.String(logging.FieldEventType, "profile_migrated"),
		logging.String("internal_name", derivation.Internal),
		logging.String("picture", outcome.Picture),
		logging.Bool("dry_run", o.dryRun),
	)
	return profileResult{patch: patch, outcome: outcome}
}

func (o *Orchestrator) record(ctx context.Context, report *Report, outcome Outcome) {
	report.Outcomes = append(report.Outcomes, outcome)
	if o.recorder == nil {
		return
	}
	if err := o.recorder.RecordOutcome(context.WithoutCancel(ctx), report.RunID, outcome); err != nil {
		o.recorderFailed(ctx, "record outcome", err)
	}
}

func (o *Orchestrator) beginRun(ctx context.Context, report Report) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.BeginRun(context.WithoutCancel(ctx), report); err != nil {
		o.recorderFailed(ctx, "begin run", err)
	}
}

func (o *Orchestrator) finishRun(ctx context.Context, report Report) {
	if o.recorder == nil {
		return
	}
	if err := o.recorder.FinishRun(context.WithoutCancel(ctx), report); err != nil {
		o.recorderFailed(ctx, "finish run", err)
	}
}

func (o *Orchestrator) recorderFailed(ctx context.Context, op string, err error) {
	logging.WarnWithContext(logging.WithContext(ctx, o.logger), "run ledger write failed", "ledger_write_failed",
		logging.String("operation", op),
		logging.Error(err),
		logging.String(logging.FieldImpact, "run history incomplete"),
		logging.String(logging.FieldErrorHint, "check the ledger database under state_dir"),
	)
}

func summaryAttrs(r Report) []logging.Attr {
	return []logging.Attr{
		logging.String("state", string(r.State)),
		logging.Int("pages", r.Pages),
		logging.Int("scanned", r.Scanned),
		logging.Int("eligible", r.Eligible),
		logging.Int("incomplete", r.Incomplete),
		logging.Int("processed", r.Processed),
		logging.Int("skipped", r.Skipped),
		logging.Int("synced", r.Synced),
		logging.Int("failed", r.Failed),
		logging.Duration("duration", r.Duration()),
	}
}

func skipHint(err error) string {
	switch {
	case errors.Is(err, services.ErrIO):
		return "check that the legacy image exists and is readable"
	case errors.Is(err, services.ErrFormat):
		return "replace the legacy image with a square PNG, JPEG, GIF, or WebP"
	case errors.Is(err, services.ErrSigning):
		return "check the publisher signing key configuration"
	default:
		return "check logs for details"
	}
}

func abortHint(err error) string {
	switch {
	case errors.Is(err, services.ErrAuth):
		return "verify auth.client_id, auth.client_secret, and the token audience"
	case errors.Is(err, services.ErrNetwork):
		return "check connectivity to the person API and retry"
	case errors.Is(err, services.ErrSerialization):
		return "the person API returned an unexpected listing shape"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "run was cancelled; re-run to continue"
	default:
		return "check logs for details"
	}
}
