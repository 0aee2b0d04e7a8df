package migrate_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"avatarmig/internal/avatar"
	"avatarmig/internal/migrate"
	"avatarmig/internal/naming"
	"avatarmig/internal/profile"
	"avatarmig/internal/services"
	"avatarmig/internal/services/person"
	"avatarmig/internal/signing"
	"avatarmig/internal/source"
	"avatarmig/internal/testsupport"
)

const testSecret = "0123456789abcdef-test-secret"

var fixedNow = time.Date(2024, 3, 9, 12, 30, 45, 999, time.UTC)

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
)

func signingKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		testKey = key
	})
	return testKey
}

type staticKeys struct {
	key *rsa.PrivateKey
}

func (s staticKeys) PrivateKey(publisher profile.PublisherAuthority) (*rsa.PrivateKey, error) {
	if publisher != profile.PublisherMozilliansorg {
		return nil, services.Wrap(services.ErrSigning, "test", "key", "no key for "+string(publisher), nil)
	}
	return s.key, nil
}

type failingSigner struct{}

func (failingSigner) Sign(profile.Signable) error {
	return errors.New("hsm offline")
}

func newMutator(t *testing.T) *migrate.Mutator {
	t.Helper()
	return migrate.NewMutator(
		signing.NewSigner(staticKeys{key: signingKey(t)}),
		migrate.WithClock(func() time.Time { return fixedNow }),
	)
}

func newDeriver(t *testing.T) *naming.Deriver {
	t.Helper()
	d, err := naming.NewDeriver([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	return d
}

func strAttr(value string) profile.StandardAttribute {
	display := profile.DisplayStaff
	attr := profile.StandardAttribute{
		Metadata: profile.Metadata{
			Classification: "PUBLIC",
			Created:        profile.NewTimestamp(time.Date(2019, 1, 2, 3, 4, 5, 0, time.UTC)),
			LastModified:   profile.NewTimestamp(time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)),
			Display:        &display,
		},
		Signature: profile.Signature{
			Publisher: profile.PublisherSignature{Alg: "RS256", Typ: "JWS", Name: profile.PublisherMozilliansorg, Value: "old"},
		},
	}
	attr.Set(value)
	return attr
}

// makeProfile builds a profile. An empty field leaves that attribute absent.
func makeProfile(userID, uuid, picture string) profile.Profile {
	var p profile.Profile
	if userID != "" {
		p.UserID = strAttr(userID)
		p.PrimaryEmail = strAttr(userID + "@example.test")
	}
	if uuid != "" {
		p.UUID = strAttr(uuid)
	}
	if picture != "" {
		p.Picture = strAttr(picture)
	}
	p.Active.Set(true)
	p.Active.Signature.Publisher = profile.PublisherSignature{Name: profile.PublisherLDAP, Value: "active-sig"}
	return p
}

func legacyURL(userID string) string {
	return "https://s3.amazonaws.com/bucket/" + userID + ".jpg"
}

type fakeLister struct {
	mu     sync.Mutex
	pages  []person.Batch
	failAt int // 1-based page index that fails; 0 disables
	err    error
	calls  []string
}

func (f *fakeLister) List(_ context.Context, continuation string) (person.Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, continuation)
	index := len(f.calls)
	if f.failAt == index {
		return person.Batch{}, f.err
	}
	batch := f.pages[index-1]
	if index < len(f.pages) {
		batch.Next = fmt.Sprintf("page-%d", index+1)
	}
	return batch, nil
}

type fakeUpdater struct {
	mu     sync.Mutex
	chunks [][]profile.Patch
	failOn map[int]error
}

func (f *fakeUpdater) Update(_ context.Context, chunk []profile.Patch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	index := len(f.chunks)
	f.chunks = append(f.chunks, append([]profile.Patch(nil), chunk...))
	if err, ok := f.failOn[index]; ok {
		return err
	}
	return nil
}

func (f *fakeUpdater) submitted() []profile.Patch {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []profile.Patch
	for _, chunk := range f.chunks {
		out = append(out, chunk...)
	}
	return out
}

type fakeRecorder struct {
	mu       sync.Mutex
	begun    []string
	outcomes []migrate.Outcome
	finished []migrate.Report
}

func (f *fakeRecorder) BeginRun(_ context.Context, r migrate.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.begun = append(f.begun, r.RunID)
	return nil
}

func (f *fakeRecorder) RecordOutcome(_ context.Context, _ string, o migrate.Outcome) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, o)
	return nil
}

func (f *fakeRecorder) FinishRun(_ context.Context, r migrate.Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finished = append(f.finished, r)
	return nil
}

type harness struct {
	inputDir  string
	outputDir string
	lister    *fakeLister
	updater   *fakeUpdater
	recorder  *fakeRecorder
	deriver   *naming.Deriver
}

func newHarness(t *testing.T, pages ...person.Batch) *harness {
	t.Helper()
	return &harness{
		inputDir:  t.TempDir(),
		outputDir: t.TempDir(),
		lister:    &fakeLister{pages: pages},
		updater:   &fakeUpdater{},
		recorder:  &fakeRecorder{},
		deriver:   newDeriver(t),
	}
}

// addImage places a square JPEG for userID in the input directory.
func (h *harness) addImage(t *testing.T, userID string) {
	t.Helper()
	testsupport.WriteFile(t, filepath.Join(h.inputDir, userID+".jpg"), testsupport.JPEG(t, 300, 300))
}

func (h *harness) orchestrator(t *testing.T, dryRun bool) *migrate.Orchestrator {
	t.Helper()
	o, err := migrate.New(migrate.Options{
		Lister:   h.lister,
		Source:   source.NewDirSource(h.inputDir, ".jpg"),
		Deriver:  h.deriver,
		Writer:   avatar.NewWriter(h.outputDir, avatar.WithDryRun(dryRun)),
		Mutator:  newMutator(t),
		Syncer:   migrate.NewSyncer(h.updater, nil),
		Recorder: h.recorder,
		Workers:  3,
		DryRun:   dryRun,
		NewRunID: func() string { return "run-test" },
		Now:      func() time.Time { return fixedNow },
	})
	if err != nil {
		t.Fatalf("migrate.New: %v", err)
	}
	return o
}
