package profile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Display is the visibility level attached to an attribute.
type Display string

const (
	DisplayPublic        Display = "public"
	DisplayAuthenticated Display = "authenticated"
	DisplayVouched       Display = "vouched"
	DisplayNdaed         Display = "ndaed"
	DisplayStaff         Display = "staff"
	DisplayPrivate       Display = "private"
)

// ParseDisplay validates a display level string.
func ParseDisplay(value string) (Display, error) {
	d := Display(strings.ToLower(strings.TrimSpace(value)))
	switch d {
	case DisplayPublic, DisplayAuthenticated, DisplayVouched, DisplayNdaed, DisplayStaff, DisplayPrivate:
		return d, nil
	default:
		return "", fmt.Errorf("unknown display level %q", value)
	}
}

// PublisherAuthority names the system allowed to sign an attribute.
type PublisherAuthority string

const (
	PublisherMozilliansorg  PublisherAuthority = "mozilliansorg"
	PublisherHRIS           PublisherAuthority = "hris"
	PublisherLDAP           PublisherAuthority = "ldap"
	PublisherCIS            PublisherAuthority = "cis"
	PublisherAccessProvider PublisherAuthority = "access_provider"
)

// Publishers lists every known authority in a stable order.
func Publishers() []PublisherAuthority {
	return []PublisherAuthority{
		PublisherMozilliansorg,
		PublisherHRIS,
		PublisherLDAP,
		PublisherCIS,
		PublisherAccessProvider,
	}
}

// ParsePublisher validates a publisher authority string.
func ParsePublisher(value string) (PublisherAuthority, error) {
	p := PublisherAuthority(strings.ToLower(strings.TrimSpace(value)))
	for _, known := range Publishers() {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown publisher %q", value)
}

// Timestamp is an RFC 3339 instant. A decoded Timestamp re-encodes as the
// exact text it was read from; one built by NewTimestamp encodes with second
// precision in UTC. A zero value encodes as null.
type Timestamp struct {
	time.Time

	text string
}

// NewTimestamp truncates t to whole seconds in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Second)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.text != "" {
		return json.Marshal(t.text)
	}
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*raw))
	if err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	*t = Timestamp{Time: parsed, text: *raw}
	return nil
}

// Metadata describes provenance and visibility of an attribute value.
type Metadata struct {
	Classification string    `json:"classification"`
	LastModified   Timestamp `json:"last_modified"`
	Created        Timestamp `json:"created"`
	Display        *Display  `json:"display"`
	Verified       bool      `json:"verified"`
}

// PublisherSignature is a single detached JWS over an attribute.
type PublisherSignature struct {
	Alg   string             `json:"alg"`
	Typ   string             `json:"typ"`
	Name  PublisherAuthority `json:"name"`
	Value string             `json:"value"`
}

// Signature holds the publisher signature plus any additional ones.
type Signature struct {
	Publisher  PublisherSignature   `json:"publisher"`
	Additional []PublisherSignature `json:"additional"`
}

// Attribute is a signed, metadata-bearing profile value. A nil Value means
// the attribute is absent.
type Attribute[T any] struct {
	Signature Signature `json:"signature"`
	Metadata  Metadata  `json:"metadata"`
	Value     *T        `json:"value"`
}

type (
	StandardAttribute = Attribute[string]
	BooleanAttribute  = Attribute[bool]
)

// Get returns the value and whether it is present.
func (a Attribute[T]) Get() (T, bool) {
	if a.Value == nil {
		var zero T
		return zero, false
	}
	return *a.Value, true
}

// ValueOrZero returns the value or the zero value of T when absent.
func (a Attribute[T]) ValueOrZero() T {
	v, _ := a.Get()
	return v
}

// Set replaces the value.
func (a *Attribute[T]) Set(v T) {
	a.Value = &v
}

// Clone returns a deep copy so a patch never aliases source state.
func (a Attribute[T]) Clone() Attribute[T] {
	out := a
	if a.Value != nil {
		v := *a.Value
		out.Value = &v
	}
	if a.Metadata.Display != nil {
		d := *a.Metadata.Display
		out.Metadata.Display = &d
	}
	if a.Signature.Additional != nil {
		out.Signature.Additional = append([]PublisherSignature(nil), a.Signature.Additional...)
	}
	return out
}

// SigningPayload is the canonical JSON the publisher signature covers: the
// metadata and value without the signature block.
func (a *Attribute[T]) SigningPayload() ([]byte, error) {
	payload := struct {
		Metadata Metadata `json:"metadata"`
		Value    *T       `json:"value"`
	}{Metadata: a.Metadata, Value: a.Value}
	return json.Marshal(payload)
}

// PublisherName returns the authority expected to sign the attribute.
func (a *Attribute[T]) PublisherName() PublisherAuthority {
	return a.Signature.Publisher.Name
}

// SetPublisherSignature stores a freshly computed publisher signature.
func (a *Attribute[T]) SetPublisherSignature(sig PublisherSignature) {
	a.Signature.Publisher = sig
}

// Signable is implemented by attributes that can carry a publisher signature.
type Signable interface {
	SigningPayload() ([]byte, error)
	PublisherName() PublisherAuthority
	SetPublisherSignature(PublisherSignature)
}

var (
	_ Signable = (*StandardAttribute)(nil)
	_ Signable = (*BooleanAttribute)(nil)
)
