package migrate

import (
	"errors"
	"time"

	"avatarmig/internal/naming"
	"avatarmig/internal/profile"
	"avatarmig/internal/services"
	"avatarmig/internal/signing"
)

// DefaultPathPrefix precedes the external name in rewritten picture values.
const DefaultPathPrefix = "/avatar/get/id/"

// Mutator builds the signed picture patch for a migrated profile.
type Mutator struct {
	signer     signing.AttributeSigner
	publisher  profile.PublisherAuthority
	pathPrefix string
	now        func() time.Time
}

// MutatorOption customises Mutator construction.
type MutatorOption func(*Mutator)

// WithClock overrides the time source used for last_modified.
func WithClock(now func() time.Time) MutatorOption {
	return func(m *Mutator) {
		if now != nil {
			m.now = now
		}
	}
}

// WithPublisher sets the authority the picture is signed as.
func WithPublisher(publisher profile.PublisherAuthority) MutatorOption {
	return func(m *Mutator) {
		if publisher != "" {
			m.publisher = publisher
		}
	}
}

// WithPathPrefix sets the prefix placed before the external name.
func WithPathPrefix(prefix string) MutatorOption {
	return func(m *Mutator) {
		if prefix != "" {
			m.pathPrefix = prefix
		}
	}
}

// NewMutator builds a Mutator that signs through signer.
func NewMutator(signer signing.AttributeSigner, opts ...MutatorOption) *Mutator {
	m := &Mutator{
		signer:     signer,
		publisher:  profile.PublisherMozilliansorg,
		pathPrefix: DefaultPathPrefix,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Mutate returns the patch for p. user_id and active are carried over with
// their signatures; picture points at the external name, is marked verified,
// and is freshly signed. The source profile is never modified.
func (m *Mutator) Mutate(p profile.Profile, d naming.Derivation) (profile.Patch, error) {
	if d.External == "" {
		return profile.Patch{}, services.Wrap(services.ErrSigning, "mutator", "mutate", "empty external name", nil)
	}

	picture := p.Picture.Clone()
	picture.Set(m.pathPrefix + d.External)
	picture.Metadata.LastModified = profile.NewTimestamp(m.now())
	picture.Metadata.Verified = true
	picture.Signature = profile.Signature{
		Publisher: profile.PublisherSignature{
			Alg:  signing.Algorithm,
			Typ:  signing.TokenType,
			Name: m.publisher,
		},
		Additional: []profile.PublisherSignature{},
	}

	if err := m.signer.Sign(&picture); err != nil {
		if errors.Is(err, services.ErrSigning) {
			return profile.Patch{}, err
		}
		return profile.Patch{}, services.Wrap(services.ErrSigning, "mutator", "sign picture", string(m.publisher), err)
	}

	return profile.NewPatch(p, picture), nil
}
