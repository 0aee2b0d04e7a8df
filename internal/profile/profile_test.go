package profile_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"avatarmig/internal/profile"
)

const sampleProfile = `{
  "user_id": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "ldap", "value": "sig-u"}, "additional": []},
              "metadata": {"classification": "PUBLIC", "last_modified": "2019-01-01T00:00:00Z", "created": "2019-01-01T00:00:00Z", "display": "public", "verified": true},
              "value": "u1"},
  "uuid": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "cis", "value": ""}},
           "metadata": {"classification": "PUBLIC", "display": "public", "verified": true},
           "value": "U1"},
  "active": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "access_provider", "value": "sig-a"}},
             "metadata": {"classification": "PUBLIC", "display": "public", "verified": true},
             "value": true},
  "picture": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "mozilliansorg", "value": ""}},
              "metadata": {"classification": "MOZILLA CONFIDENTIAL", "last_modified": "2018-06-01T10:00:00.123Z", "created": "2017-03-04T05:06:07Z", "display": "staff", "verified": false},
              "value": "https://s3.amazonaws.com/bucket/abc.jpg"},
  "staff_information": {"title": {"value": "Engineer"}},
  "schema": "https://person-api.sso.mozilla.com/schema/v2/profile"
}`

func TestProfileDecodesTypedAttributes(t *testing.T) {
	var p profile.Profile
	if err := json.Unmarshal([]byte(sampleProfile), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got := p.UserID.ValueOrZero(); got != "u1" {
		t.Fatalf("unexpected user id %q", got)
	}
	if got := p.UUID.ValueOrZero(); got != "U1" {
		t.Fatalf("unexpected uuid %q", got)
	}
	if active, ok := p.Active.Get(); !ok || !active {
		t.Fatalf("expected active=true, got %v %v", active, ok)
	}
	if p.Picture.Metadata.Display == nil || *p.Picture.Metadata.Display != profile.DisplayStaff {
		t.Fatalf("unexpected display %v", p.Picture.Metadata.Display)
	}
	want := time.Date(2017, 3, 4, 5, 6, 7, 0, time.UTC)
	if !p.Picture.Metadata.Created.Equal(want) {
		t.Fatalf("unexpected created %v", p.Picture.Metadata.Created)
	}
	if _, ok := p.PrimaryEmail.Get(); ok {
		t.Fatal("expected primary email to be absent")
	}
	if _, ok := p.Extra("staff_information"); !ok {
		t.Fatal("expected untyped attribute to be preserved")
	}
}

func TestProfileRoundTripKeepsUnknownKeys(t *testing.T) {
	var p profile.Profile
	if err := json.Unmarshal([]byte(sampleProfile), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal generic: %v", err)
	}
	for _, key := range []string{"user_id", "uuid", "active", "picture", "staff_information", "schema"} {
		if _, ok := generic[key]; !ok {
			t.Fatalf("expected key %q after round trip", key)
		}
	}
	if !strings.Contains(string(generic["staff_information"]), "Engineer") {
		t.Fatalf("unknown attribute altered: %s", generic["staff_information"])
	}
}

func TestProfileRejectsNonObject(t *testing.T) {
	var p profile.Profile
	if err := json.Unmarshal([]byte(`[1,2]`), &p); err == nil {
		t.Fatal("expected error for array input")
	}
	if err := json.Unmarshal([]byte(`null`), &p); err == nil {
		t.Fatal("expected error for null input")
	}
}

func TestPatchEncodesExactlyThreeKeys(t *testing.T) {
	var patch profile.Patch
	patch.UserID.Set("u1")
	patch.Active.Set(true)
	patch.Picture.Set("/avatar/get/id/abc")

	data, err := json.Marshal(patch)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(generic) != 3 {
		t.Fatalf("expected 3 keys, got %d: %s", len(generic), data)
	}
	if patch.UserIDValue() != "u1" {
		t.Fatalf("unexpected user id %q", patch.UserIDValue())
	}
}

func TestNewTimestampSecondPrecision(t *testing.T) {
	ts := profile.NewTimestamp(time.Date(2024, 5, 6, 7, 8, 9, 987654321, time.FixedZone("x", 3600)))
	data, err := json.Marshal(ts)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `"2024-05-06T06:08:09Z"` {
		t.Fatalf("unexpected encoding %s", data)
	}
	var zero profile.Timestamp
	data, _ = json.Marshal(zero)
	if string(data) != "null" {
		t.Fatalf("expected null for zero timestamp, got %s", data)
	}
}

func TestSigningPayloadExcludesSignature(t *testing.T) {
	var attr profile.StandardAttribute
	attr.Set("value")
	attr.Signature.Publisher.Value = "old-signature"
	payload, err := attr.SigningPayload()
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	if strings.Contains(string(payload), "old-signature") || strings.Contains(string(payload), "signature") {
		t.Fatalf("payload must not include signature: %s", payload)
	}
}

func TestCloneDoesNotAlias(t *testing.T) {
	var attr profile.StandardAttribute
	attr.Set("a")
	d := profile.DisplayStaff
	attr.Metadata.Display = &d
	clone := attr.Clone()
	clone.Set("b")
	*clone.Metadata.Display = profile.DisplayPublic
	if attr.ValueOrZero() != "a" || *attr.Metadata.Display != profile.DisplayStaff {
		t.Fatal("clone mutated source attribute")
	}
}

func TestParseDisplayAndPublisher(t *testing.T) {
	if d, err := profile.ParseDisplay(" Staff "); err != nil || d != profile.DisplayStaff {
		t.Fatalf("unexpected display parse %v %v", d, err)
	}
	if _, err := profile.ParseDisplay("everyone"); err == nil {
		t.Fatal("expected error for unknown display")
	}
	if p, err := profile.ParsePublisher("HRIS"); err != nil || p != profile.PublisherHRIS {
		t.Fatalf("unexpected publisher parse %v %v", p, err)
	}
	if _, err := profile.ParsePublisher("nobody"); err == nil {
		t.Fatal("expected error for unknown publisher")
	}
}

func TestTimestampKeepsWireText(t *testing.T) {
	cases := []string{
		`"2019-03-28T16:41:02.183Z"`,
		`"2019-03-28T18:41:02.183+02:00"`,
		`"2019-03-28T16:41:02Z"`,
	}
	want := time.Date(2019, 3, 28, 16, 41, 2, 0, time.UTC)
	for _, input := range cases {
		var ts profile.Timestamp
		if err := json.Unmarshal([]byte(input), &ts); err != nil {
			t.Fatalf("unmarshal %s: %v", input, err)
		}
		if !ts.Truncate(time.Second).Equal(want) {
			t.Fatalf("%s decoded to %v", input, ts.Time)
		}
		data, err := json.Marshal(ts)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(data) != input {
			t.Fatalf("expected %s re-encoded verbatim, got %s", input, data)
		}
	}
}

const carriedProfile = `{
  "user_id": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "ldap", "value": "sig"}, "additional": [{"alg": "RS256", "typ": "JWS", "name": "cis", "value": "extra"}]},
              "metadata": {"classification": "PUBLIC", "last_modified": "2019-03-28T16:41:02.183Z", "created": "2019-03-28T18:41:02.183+02:00", "display": "public", "verified": true, "note": "kept"},
              "value": "u1"},
  "active": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "access_provider", "value": "sig-a"}},
             "metadata": {"classification": "PUBLIC", "last_modified": "2020-01-01T00:00:00.5Z", "created": "2020-01-01T00:00:00.5Z", "display": "public", "verified": true},
             "value": true},
  "picture": {"signature": {"publisher": {"alg": "RS256", "typ": "JWS", "name": "mozilliansorg", "value": ""}},
              "metadata": {"classification": "PUBLIC", "last_modified": "2019-03-28T16:41:02.183Z", "created": "2019-03-28T16:41:02.183Z", "display": "staff", "verified": false},
              "value": "https://s3.amazonaws.com/bucket/u1.jpg"}
}`

func compactField(t *testing.T, doc []byte, key string) []byte {
	t.Helper()
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, fields[key]); err != nil {
		t.Fatalf("compact %s: %v", key, err)
	}
	return buf.Bytes()
}

func TestNewPatchEncodesCarriedAttributesAsReceived(t *testing.T) {
	var src profile.Profile
	if err := json.Unmarshal([]byte(carriedProfile), &src); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	picture := src.Picture.Clone()
	picture.Set("/avatar/get/id/abc")

	data, err := json.Marshal(profile.NewPatch(src, picture))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for _, key := range []string{"user_id", "active"} {
		want := compactField(t, []byte(carriedProfile), key)
		if got := compactField(t, data, key); !bytes.Equal(got, want) {
			t.Fatalf("%s changed:\n got %s\nwant %s", key, got, want)
		}
	}
	if !strings.Contains(string(compactField(t, data, "picture")), `"created":"2019-03-28T16:41:02.183Z"`) {
		t.Fatalf("picture created not carried: %s", data)
	}
}

func TestNewPatchWithoutWireBytesEncodesTypedFields(t *testing.T) {
	var src profile.Profile
	src.UserID.Set("u1")
	src.Active.Set(true)

	data, err := json.Marshal(profile.NewPatch(src, profile.StandardAttribute{}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(compactField(t, data, "user_id")), `"value":"u1"`) {
		t.Fatalf("user_id not encoded: %s", data)
	}
	if !strings.Contains(string(compactField(t, data, "active")), `"value":true`) {
		t.Fatalf("active not encoded: %s", data)
	}
}
