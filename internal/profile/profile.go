package profile

import (
	"encoding/json"
	"fmt"
)

const (
	keyUserID       = "user_id"
	keyUUID         = "uuid"
	keyPrimaryEmail = "primary_email"
	keyPicture      = "picture"
	keyActive       = "active"
)

// Profile is a directory profile with typed access to the attributes the
// migration touches. Unknown top-level keys are preserved verbatim, and the
// wire bytes of each typed attribute are kept for carrying it unchanged.
type Profile struct {
	UserID       StandardAttribute
	UUID         StandardAttribute
	PrimaryEmail StandardAttribute
	Picture      StandardAttribute
	Active       BooleanAttribute

	rest map[string]json.RawMessage
	wire map[string]json.RawMessage
}

// Extra returns the raw JSON of an untyped top-level attribute.
func (p Profile) Extra(key string) (json.RawMessage, bool) {
	raw, ok := p.rest[key]
	return raw, ok
}

func (p *Profile) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("profile: expected object")
	}
	out := Profile{wire: make(map[string]json.RawMessage, 5)}
	typed := []struct {
		key string
		dst any
	}{
		{keyUserID, &out.UserID},
		{keyUUID, &out.UUID},
		{keyPrimaryEmail, &out.PrimaryEmail},
		{keyPicture, &out.Picture},
		{keyActive, &out.Active},
	}
	for _, field := range typed {
		raw, ok := fields[field.key]
		if !ok {
			continue
		}
		delete(fields, field.key)
		if string(raw) == "null" {
			continue
		}
		if err := json.Unmarshal(raw, field.dst); err != nil {
			return fmt.Errorf("profile: %s: %w", field.key, err)
		}
		out.wire[field.key] = raw
	}
	if len(fields) > 0 {
		out.rest = fields
	}
	*p = out
	return nil
}

func (p Profile) MarshalJSON() ([]byte, error) {
	fields := make(map[string]any, len(p.rest)+5)
	for k, v := range p.rest {
		fields[k] = v
	}
	fields[keyUserID] = p.UserID
	fields[keyUUID] = p.UUID
	fields[keyPrimaryEmail] = p.PrimaryEmail
	fields[keyPicture] = p.Picture
	fields[keyActive] = p.Active
	return json.Marshal(fields)
}

// Patch is the minimal update fragment for one profile: the identity key,
// the unchanged active flag, and the rewritten picture.
type Patch struct {
	UserID  StandardAttribute `json:"user_id"`
	Active  BooleanAttribute  `json:"active"`
	Picture StandardAttribute `json:"picture"`

	userIDWire json.RawMessage
	activeWire json.RawMessage
}

// NewPatch carries user_id and active over from source next to picture.
// When source was decoded from JSON the carried attributes encode as the
// bytes received, so their existing signatures still cover them.
func NewPatch(source Profile, picture StandardAttribute) Patch {
	return Patch{
		UserID:     source.UserID.Clone(),
		Active:     source.Active.Clone(),
		Picture:    picture,
		userIDWire: source.wire[keyUserID],
		activeWire: source.wire[keyActive],
	}
}

// UserIDValue returns the user id carried by the patch.
func (p Patch) UserIDValue() string {
	return p.UserID.ValueOrZero()
}

func (p Patch) MarshalJSON() ([]byte, error) {
	userID, err := carried(p.userIDWire, p.UserID)
	if err != nil {
		return nil, err
	}
	active, err := carried(p.activeWire, p.Active)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		UserID  json.RawMessage   `json:"user_id"`
		Active  json.RawMessage   `json:"active"`
		Picture StandardAttribute `json:"picture"`
	}{UserID: userID, Active: active, Picture: p.Picture})
}

func carried(wire json.RawMessage, attr any) (json.RawMessage, error) {
	if len(wire) > 0 {
		return wire, nil
	}
	return json.Marshal(attr)
}
