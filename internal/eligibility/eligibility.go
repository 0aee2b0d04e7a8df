// Package eligibility decides which profiles carry a legacy-hosted avatar
// that the migration should process.
package eligibility

import (
	"strings"

	"golang.org/x/text/cases"

	"avatarmig/internal/profile"
)

// DefaultLegacyPrefix is the storage location legacy avatars were served from.
const DefaultLegacyPrefix = "https://s3.amazonaws.com/"

// LegacyStorage reports whether a picture URL points at legacy storage.
type LegacyStorage interface {
	IsLegacyStorage(rawURL string) bool
}

// PrefixStorage matches URLs against configured prefixes. Scheme and host
// compare case-insensitively; the path compares exactly.
type PrefixStorage struct {
	prefixes []prefix
}

type prefix struct {
	origin string
	path   string
}

// NewPrefixStorage builds a matcher; an empty list falls back to
// DefaultLegacyPrefix.
func NewPrefixStorage(prefixes ...string) *PrefixStorage {
	s := &PrefixStorage{}
	for _, p := range prefixes {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			s.prefixes = append(s.prefixes, split(trimmed))
		}
	}
	if len(s.prefixes) == 0 {
		s.prefixes = append(s.prefixes, split(DefaultLegacyPrefix))
	}
	return s
}

// IsLegacyStorage implements LegacyStorage.
func (s *PrefixStorage) IsLegacyStorage(rawURL string) bool {
	candidate := split(strings.TrimSpace(rawURL))
	for _, p := range s.prefixes {
		if candidate.origin == p.origin && strings.HasPrefix(candidate.path, p.path) {
			return true
		}
	}
	return false
}

// split separates "scheme://host" (case folded) from the remainder. A Caser
// is stateful, so each call folds with its own.
func split(raw string) prefix {
	idx := strings.Index(raw, "://")
	if idx < 0 {
		return prefix{path: raw}
	}
	rest := raw[idx+3:]
	slash := strings.IndexByte(rest, '/')
	if slash < 0 {
		return prefix{origin: cases.Fold().String(raw), path: ""}
	}
	return prefix{
		origin: cases.Fold().String(raw[:idx+3+slash]),
		path:   rest[slash:],
	}
}

// Status is the outcome of classifying one profile.
type Status int

const (
	// NotLegacy means the picture is absent or hosted elsewhere.
	NotLegacy Status = iota
	// Eligible means the profile can be migrated.
	Eligible
	// Incomplete means the picture is legacy but identity fields are missing.
	Incomplete
)

func (s Status) String() string {
	switch s {
	case Eligible:
		return "eligible"
	case Incomplete:
		return "incomplete"
	default:
		return "not_legacy"
	}
}

// Verdict explains a classification.
type Verdict struct {
	Status  Status
	Missing []string
}

// Filter classifies profiles using a LegacyStorage predicate.
type Filter struct {
	storage LegacyStorage
}

// NewFilter builds a Filter. A nil storage uses the default prefix.
func NewFilter(storage LegacyStorage) *Filter {
	if storage == nil {
		storage = NewPrefixStorage()
	}
	return &Filter{storage: storage}
}

// Classify decides whether p should be migrated.
func (f *Filter) Classify(p profile.Profile) Verdict {
	picture, ok := p.Picture.Get()
	if !ok || !f.storage.IsLegacyStorage(picture) {
		return Verdict{Status: NotLegacy}
	}
	var missing []string
	if v, ok := p.UUID.Get(); !ok || strings.TrimSpace(v) == "" {
		missing = append(missing, "uuid")
	}
	if v, ok := p.UserID.Get(); !ok || strings.TrimSpace(v) == "" {
		missing = append(missing, "user_id")
	}
	if len(missing) > 0 {
		return Verdict{Status: Incomplete, Missing: missing}
	}
	return Verdict{Status: Eligible}
}

// IsLegacy reports whether p is eligible for migration.
func (f *Filter) IsLegacy(p profile.Profile) bool {
	return f.Classify(p).Status == Eligible
}
